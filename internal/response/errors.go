package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrPermissionDenied    ErrCode = "PERMISSION_DENIED"
	ErrCandidateAccessOnly ErrCode = "CANDIDATE_ACCESS_ONLY"
	ErrAdminAccessOnly     ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Exam attempt ──────────────────────────────────────────────────
	ErrExamNotAvailable        ErrCode = "EXAM_NOT_AVAILABLE"
	ErrInvalidAccessCode       ErrCode = "INVALID_ACCESS_CODE"
	ErrAttemptNotFound         ErrCode = "ATTEMPT_NOT_FOUND"
	ErrAttemptForbidden        ErrCode = "ATTEMPT_FORBIDDEN"
	ErrAttemptAlreadyFinalized ErrCode = "ATTEMPT_ALREADY_FINALIZED"
	ErrAttemptStillRunning     ErrCode = "ATTEMPT_STILL_RUNNING"
	ErrIncompleteSubmission    ErrCode = "INCOMPLETE_SUBMISSION"
	ErrUnknownQuestion         ErrCode = "UNKNOWN_QUESTION"
	ErrInvalidOption           ErrCode = "INVALID_OPTION"
	ErrAnswersUnavailable      ErrCode = "ANSWERS_UNAVAILABLE"

	// ─── Scoring ───────────────────────────────────────────────────────
	ErrWrongItemCount        ErrCode = "WRONG_ITEM_COUNT"
	ErrInvalidAnswerValue    ErrCode = "INVALID_ANSWER_VALUE"
	ErrUnclassifiedAnswerSet ErrCode = "UNCLASSIFIED_COMBINATION"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrPermissionDenied:
		return "Izin ditolak."
	case ErrCandidateAccessOnly:
		return "Sumber daya ini terbatas untuk peserta."
	case ErrAdminAccessOnly:
		return "Sumber daya ini terbatas untuk administrator."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Exam attempt ──────────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "Ujian ini saat ini tidak tersedia."
	case ErrInvalidAccessCode:
		return "Kode akses ujian tidak valid."
	case ErrAttemptNotFound:
		return "Sesi pengerjaan tidak ditemukan."
	case ErrAttemptForbidden:
		return "Sesi pengerjaan ini milik peserta lain."
	case ErrAttemptAlreadyFinalized:
		return "Sesi pengerjaan sudah selesai dan tidak dapat diubah."
	case ErrAttemptStillRunning:
		return "Waktu pengerjaan belum habis."
	case ErrIncompleteSubmission:
		return "Masih ada soal yang belum dijawab."
	case ErrUnknownQuestion:
		return "Soal tidak ditemukan pada ujian ini."
	case ErrInvalidOption:
		return "Pilihan jawaban tidak valid."
	case ErrAnswersUnavailable:
		return "Jawaban tersimpan sementara tidak dapat dibaca. Silakan coba lagi."

	// ─── Scoring ───────────────────────────────────────────────────────
	case ErrWrongItemCount:
		return "Jumlah butir jawaban tidak sesuai dengan instrumen."
	case ErrInvalidAnswerValue:
		return "Nilai jawaban di luar rentang instrumen."
	case ErrUnclassifiedAnswerSet:
		return "Kombinasi gejala tidak memiliki klasifikasi."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
