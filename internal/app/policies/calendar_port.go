package policies

import (
	"context"
	"time"

	"hostboard/internal/domain/availability"
	"hostboard/internal/domain/shared/daterange"
)

// CalendarGateway is the remote booking-platform calendar. Reads are eventually consistent
// and writes are not idempotent from the platform's point of view.
type CalendarGateway interface {
	FetchRange(ctx context.Context, propertyID string, start, end daterange.Date) (availability.RangeFeed, error)
	FetchMonthPricing(ctx context.Context, propertyID string, year int, month time.Month) (availability.PricingSnapshot, error)
	FetchDateDetail(ctx context.Context, propertyID string, date daterange.Date) (availability.DateDetail, error)
	SetAvailability(ctx context.Context, propertyID string, start, end daterange.Date, flag availability.AvailabilityFlag) error
	SetPrice(ctx context.Context, propertyID string, change availability.PriceChange) error
	SetMinimumStay(ctx context.Context, propertyID string, change availability.MinimumStayChange) error
}

type accessTokenKey struct{}

// ContextWithAccessToken carries the caller's platform token down to the gateway.
func ContextWithAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, accessTokenKey{}, token)
}

func AccessTokenFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	token, _ := ctx.Value(accessTokenKey{}).(string)
	return token
}
