package discord

import (
	"fmt"
	"time"

	"github.com/assist-by/halcyon/internal/notification"
)

// SendError는 에러 알림을 전송합니다
func (c *Client) SendError(err error) error {
	embed := NewEmbed().
		SetTitle("에러 발생").
		SetDescription(fmt.Sprintf("```%v```", err)).
		SetColor(notification.ColorError).
		SetFooter("Assist by Trading Bot 🤖").
		SetTimestamp(time.Now())

	return c.sendToWebhook(c.errorWebhook, WebhookMessage{
		Embeds: []Embed{*embed},
	})
}

// SendInfo는 일반 정보 알림을 전송합니다
func (c *Client) SendInfo(message string) error {
	embed := NewEmbed().
		SetDescription(message).
		SetColor(notification.ColorInfo).
		SetFooter("Assist by Trading Bot 🤖").
		SetTimestamp(time.Now())

	return c.sendToWebhook(c.infoWebhook, WebhookMessage{
		Embeds: []Embed{*embed},
	})
}

// SendTradeInfo는 거래 실행 정보를 전송합니다
func (c *Client) SendTradeInfo(info notification.TradeInfo) error {
	embed := NewEmbed().
		SetTitle(fmt.Sprintf("거래 실행: %s", info.Symbol)).
		SetDescription(fmt.Sprintf(
			"**포지션**: %s\n**수량**: %.8f\n**진입가**: $%g\n**손절가**: $%g\n**레버리지**: %dx\n**잔고**: %.2f USDT",
			info.PositionType, info.Quantity, info.EntryPrice, info.StopLoss, info.Leverage, info.Balance,
		)).
		SetColor(notification.GetColorForPosition(info.PositionType)).
		SetFooter("Assist by Trading Bot 🤖").
		SetTimestamp(time.Now())

	return c.sendToWebhook(c.tradeWebhook, WebhookMessage{
		Embeds: []Embed{*embed},
	})
}
