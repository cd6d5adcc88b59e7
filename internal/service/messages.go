package service

import (
	"context"
	"errors"

	"layanan/internal/api"
	"layanan/internal/models"
)

// Action names a user-triggered operation for retry decisions.
type Action string

const (
	ActionFetch   Action = "fetch"
	ActionSearch  Action = "search"
	ActionConfirm Action = "confirm"
	ActionCancel  Action = "cancel"
	ActionRating  Action = "rating"
)

const genericErrorMessage = "Terjadi kesalahan. Silakan coba lagi nanti."

// UserMessage turns an error into the Indonesian text shown in the alert.
// Server-provided messages win over local ones.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	if msg, ok := api.RejectionMessage(err); ok {
		return msg
	}

	var v *models.ValidationError
	if errors.As(err, &v) {
		switch v.Field {
		case "cancel_reason":
			return "Alasan pembatalan wajib diisi."
		case "rating":
			return "Beri nilai antara 1 sampai 5 bintang."
		case "mitra_id":
			return "Mitra untuk pesanan ini tidak ditemukan."
		}
		return "Data yang dimasukkan belum lengkap."
	}

	if errors.Is(err, ErrSearchInProgress) {
		return "Pencarian mitra sedang berlangsung."
	}
	if errors.Is(err, ErrNoSearchSession) || errors.Is(err, ErrNoTrackedBooking) {
		return "Pesanan tidak ditemukan. Silakan mulai ulang."
	}
	if errors.Is(err, models.ErrInvalidState) {
		return "Aksi ini tidak tersedia untuk status pesanan saat ini."
	}
	if errors.Is(err, models.ErrNotFound) {
		return "Data tidak ditemukan."
	}
	if errors.Is(err, context.DeadlineExceeded) || api.IsNetwork(err) {
		return "Koneksi bermasalah. Periksa internet Anda dan coba lagi."
	}

	return genericErrorMessage
}

// Retryable reports whether the alert should offer a retry. Only idempotent
// actions are retried; cancel, rating and confirm are single-shot.
func Retryable(action Action, err error) bool {
	if err == nil || models.IsValidation(err) {
		return false
	}
	switch action {
	case ActionFetch, ActionSearch:
		return true
	}
	return false
}
