package domain

import (
	"errors"
	"fmt"
)

// 바이낸스 API 에러 코드
const (
	ErrCodeInvalidTimestamp     = -1021 // 타임스탬프가 recvWindow를 벗어남 (시계 오차)
	ErrCodePositionModeNoChange = -4059 // 포지션 모드 변경 불필요
)

// APIError는 거래소가 거부한 요청의 에러 코드와 메시지를 담습니다
type APIError struct {
	Code    int    // 거래소 에러 코드 (예: -1021)
	Message string // 거래소 에러 메시지
}

// Error는 error 인터페이스를 구현합니다
func (e *APIError) Error() string {
	return fmt.Sprintf("API 에러(코드: %d): %s", e.Code, e.Message)
}

// AsAPIError는 에러 체인에서 APIError를 추출합니다
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsClockSkewError는 시계 오차로 인한 요청 거부인지 확인합니다.
// 이 에러는 시간 재동기화 후 재시도 대상입니다.
func IsClockSkewError(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Code == ErrCodeInvalidTimestamp
}

// IsPermanentRejection은 재시도해도 결과가 달라지지 않는 거부인지 확인합니다
func IsPermanentRejection(err error) bool {
	apiErr, ok := AsAPIError(err)
	if !ok {
		return false
	}
	switch apiErr.Code {
	case ErrCodePositionModeNoChange:
		return true
	default:
		return false
	}
}

// IsRetryableError는 재시도할 가치가 있는 에러인지 확인합니다
func IsRetryableError(err error) bool {
	return !IsPermanentRejection(err)
}
