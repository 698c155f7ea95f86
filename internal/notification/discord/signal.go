package discord

import (
	"fmt"

	"github.com/assist-by/halcyon/internal/domain"
	"github.com/assist-by/halcyon/internal/notification"
)

// SendSignal은 시그널 알림을 Discord로 전송합니다
func (c *Client) SendSignal(s *domain.Signal) error {
	var title, emoji string
	var color int

	switch s.Type {
	case domain.Long:
		emoji = "🚀"
		title = "LONG"
		color = notification.ColorSuccess
	case domain.Short:
		emoji = "🔻"
		title = "SHORT"
		color = notification.ColorError
	default:
		emoji = "⚠️"
		title = "NO SIGNAL"
		color = notification.ColorInfo
	}

	// 시그널 조건 상태 표시
	conditions := fmt.Sprintf(`%s 캔들 상승률 (%.2f%%)
%s 종가 > MA20/MA60
%s 저가 이탈 (%.2f%%)
%s 이동평균 이격 (%.2f%%)`,
		getCheckMark(s.Conditions.RiseInRange), s.Conditions.PriceChangePct,
		getCheckMark(s.Conditions.CloseAboveMA),
		getCheckMark(s.Conditions.ShallowLow), s.Conditions.OpenLowPct,
		getCheckMark(s.Conditions.GapInRange), s.Conditions.AboveMAPct)

	// 기술적 지표 값
	technicalValues := fmt.Sprintf("```\n[MA20]: %.5f\n[MA60]: %.5f\n[상승률]: %.2f%%\n[이격률]: %.2f%%```",
		s.Conditions.MA20,
		s.Conditions.MA60,
		s.Conditions.PriceChangePct,
		s.Conditions.AboveMAPct)

	embed := NewEmbed().
		SetTitle(fmt.Sprintf("%s %s %s", emoji, title, s.Symbol)).
		SetColor(color).
		SetDescription(fmt.Sprintf(`**시간**: %s
**현재가**: $%g`,
			s.Timestamp.Format("2006-01-02 15:04:05 KST"),
			s.Price,
		)).
		SetFooter("Assist by Trading Bot 🤖").
		SetTimestamp(s.Timestamp)

	embed.AddField("진입 조건", conditions, true)
	embed.AddField("기술적 지표", technicalValues, false)

	return c.sendToWebhook(c.signalWebhook, WebhookMessage{
		Embeds: []Embed{*embed},
	})
}

func getCheckMark(condition bool) string {
	if condition {
		return "✅"
	}
	return "❌"
}
