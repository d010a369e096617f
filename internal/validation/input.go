package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/tcgbazaar/escrow-backend/internal/pkg/apperror"
)

// Константы валидации
const (
	MinDisplayNameLength        = 2
	MaxDisplayNameLength        = 100
	MinDealTitleLength          = 3
	MaxDealTitleLength          = 200
	MinDisputeDescriptionLength = 10
	MaxDisputeDescriptionLength = 5000
	MinMessageLength            = 1
	MaxMessageLength            = 5000
	MinRejectReasonLength       = 3
	MaxRejectReasonLength       = 1000
	MaxTrackingNumberLength     = 100
	MaxPhotoURLLength           = 500
	MaxEvidencePhotos           = 20
)

// invalid формирует типизированную ошибку валидации: HTTP-слой отличает
// её от внутренних ошибок по коду, а не по тексту сообщения.
func invalid(format string, args ...interface{}) error {
	return apperror.New(apperror.ErrCodeValidation, fmt.Sprintf(format, args...))
}

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return invalid("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return invalid("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateEmail проверяет формат email.
func ValidateEmail(email string) error {
	if email == "" {
		return invalid("email обязателен")
	}

	email = strings.TrimSpace(email)
	email = strings.ToLower(email)

	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return invalid("неверный формат email")
	}
	if !strings.Contains(email[at+1:], ".") {
		return invalid("неверный формат email")
	}
	return nil
}

// ValidatePhotoURLs проверяет список URL фотографий.
func ValidatePhotoURLs(fieldName string, photos []string) error {
	if len(photos) > MaxEvidencePhotos {
		return invalid("%s: не более %d фотографий", fieldName, MaxEvidencePhotos)
	}
	for _, photo := range photos {
		if err := ValidateLength(fieldName, photo, 1, MaxPhotoURLLength); err != nil {
			return err
		}
		parsed, err := url.Parse(photo)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return invalid("%s: %q не является валидным URL", fieldName, photo)
		}
	}
	return nil
}

// ValidateTracking проверяет трек-номер перевозчика.
func ValidateTracking(tracking string) error {
	tracking = strings.TrimSpace(tracking)
	if tracking == "" {
		return invalid("трек-номер обязателен")
	}
	return ValidateLength("трек-номер", tracking, 1, MaxTrackingNumberLength)
}
