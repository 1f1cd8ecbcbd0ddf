package services

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"

	domain "github.com/ukisoft/ownplate/internal/domain"
)

const (
	msgOrderAccepted    = "msg_order_accepted"
	msgCookingCompleted = "msg_cooking_completed"
	msgOrderCanceled    = "msg_order_canceled"

	// readyMessageWindow suppresses ready notifications for orders whose estimate is stale.
	readyMessageWindow = 24 * time.Hour
)

var (
	supportedLocales = []language.Tag{language.Japanese, language.English}
	localeMatcher    = language.NewMatcher(supportedLocales)
	localeTimeLayout = map[language.Tag]string{
		language.Japanese: "2006年1月2日 15:04",
		language.English:  "January 2, 2006 3:04 PM",
	}
)

// statusMessageKey picks the customer message for entering status. order holds the state
// before the change.
func statusMessageKey(status domain.OrderStatus, order domain.Order, now time.Time) string {
	switch status {
	case domain.OrderStatusOrderAccepted:
		return msgOrderAccepted
	case domain.OrderStatusReadyToPickup:
		if order.TimeEstimated != nil && now.Sub(*order.TimeEstimated) < readyMessageWindow {
			return msgCookingCompleted
		}
	case domain.OrderStatusOrderCanceled:
		return msgOrderCanceled
	}
	return ""
}

// orderLabel renders the short display label used in messages, e.g. "#042".
func orderLabel(number int64) string {
	return fmt.Sprintf("#%03d", number%1000)
}

// matchLocale resolves an Accept-Language style value to a supported tag.
func matchLocale(raw, fallback string) language.Tag {
	candidates := make([]language.Tag, 0, 2)
	for _, value := range []string{raw, fallback} {
		value = strings.ReplaceAll(strings.TrimSpace(value), "_", "-")
		if value == "" {
			continue
		}
		if tags, _, err := language.ParseAcceptLanguage(value); err == nil {
			candidates = append(candidates, tags...)
		}
	}
	if len(candidates) == 0 {
		return supportedLocales[0]
	}
	_, index, _ := localeMatcher.Match(candidates...)
	return supportedLocales[index]
}

// formatMessageTime renders t for customers in the given location and locale.
func formatMessageTime(t time.Time, loc *time.Location, locale language.Tag) string {
	if loc == nil {
		loc = time.UTC
	}
	layout, ok := localeTimeLayout[locale]
	if !ok {
		layout = localeTimeLayout[language.English]
	}
	return t.In(loc).Format(layout)
}

// resolveLocation returns the named IANA location or fallback when empty or unknown.
func resolveLocation(name string, fallback *time.Location) *time.Location {
	name = strings.TrimSpace(name)
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	if fallback == nil {
		return time.UTC
	}
	return fallback
}
