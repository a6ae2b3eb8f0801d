package domain

import "strings"

// Status vocabularies. Upstream mixes English codes with Vietnamese labels,
// so classification is a lowercase substring match.
var (
	successTerms = []string{"success", "đã thanh toán", "paid", "completed", "hoàn tất"}
	pendingTerms = []string{"pending", "đang xử lý", "chờ", "processing"}
	refundTerms  = []string{"refund", "hoàn", "trả lại"}

	withdrawCompletedTerms = []string{"approved", "completed", "success", "done", "paid", "đã duyệt", "hoàn tất", "thành công", "đã chuyển"}
)

// NormalizeStatus lowercases and trims a raw status string.
func NormalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// IsSuccess reports whether the status marks a settled payment.
func IsSuccess(status string) bool {
	return containsAny(NormalizeStatus(status), successTerms)
}

// IsPending reports whether the status marks a payment still in flight.
func IsPending(status string) bool {
	return containsAny(NormalizeStatus(status), pendingTerms)
}

// IsRefund reports whether the status marks a reversed payment. "hoàn tất"
// (completed) shares the "hoàn" stem and is removed before matching.
func IsRefund(status string) bool {
	s := strings.ReplaceAll(NormalizeStatus(status), "hoàn tất", "")
	return containsAny(s, refundTerms)
}

// IsWithdrawCompleted reports whether a withdrawal has been paid out.
func IsWithdrawCompleted(status string) bool {
	return containsAny(NormalizeStatus(status), withdrawCompletedTerms)
}

func containsAny(s string, terms []string) bool {
	if s == "" {
		return false
	}
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}
