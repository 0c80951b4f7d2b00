package integrity

import (
	"fmt"
	"time"

	"github.com/angelmondragon/escrowledger/pkg/enums"
)

// Violation is one broken invariant observed by a scan.
type Violation struct {
	Code         enums.ViolationCode   `json:"code"`
	Severity     enums.Severity        `json:"severity"`
	TargetType   enums.AuditTargetType `json:"target_type"`
	TargetID     string                `json:"target_id"`
	Currency     enums.Currency        `json:"currency,omitempty"`
	Magnitude    int64                 `json:"magnitude,omitempty"`
	SignedAmount int64                 `json:"signed_amount,omitempty"`
	Message      string                `json:"message"`
	Details      map[string]any        `json:"details,omitempty"`
	// Deduplicated is set when the same fingerprint was recorded inside the window.
	Deduplicated bool `json:"deduplicated"`
}

// Fingerprint identifies the violation across scans: code plus subject. Balance
// violations also carry their signed amount, so a changed imbalance is a new finding.
func (v Violation) Fingerprint() string {
	subject := v.TargetID
	if v.Currency != "" && v.TargetType != enums.AuditTargetCurrency {
		subject = subject + ":" + string(v.Currency)
	}
	switch v.Code {
	case enums.ViolationGlobalImbalance, enums.ViolationNegativeAvailableBalance:
		return fmt.Sprintf("%s:%s:%d", v.Code, subject, v.SignedAmount)
	}
	return fmt.Sprintf("%s:%s", v.Code, subject)
}

// Report summarises one scan.
type Report struct {
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   time.Time   `json:"finished_at"`
	Violations   []Violation `json:"violations"`
	Recorded     int         `json:"recorded"`
	Deduplicated int         `json:"deduplicated"`
	CheckErrors  []string    `json:"check_errors,omitempty"`
	// Err aggregates every check or recording failure of the scan.
	Err error `json:"-"`
}

// ByCode returns the violations carrying code.
func (r *Report) ByCode(code enums.ViolationCode) []Violation {
	if r == nil {
		return nil
	}
	var out []Violation
	for _, v := range r.Violations {
		if v.Code == code {
			out = append(out, v)
		}
	}
	return out
}
