package validation

import (
	"fmt"
	"html"
	"net/http"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/walletreel/walletreel/errors"
	"github.com/walletreel/walletreel/models"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

type Limits struct {
	MaxDurationDays  int
	MaxPromptLength  int
	MaxTransactions  int
	MaxReportPeriods int
	DefaultActivity  models.ActivityType
}

func DefaultLimits() Limits {
	return Limits{
		MaxDurationDays:  365,
		MaxPromptLength:  2000,
		MaxTransactions:  1000,
		MaxReportPeriods: 12,
		DefaultActivity:  models.ActivityTransactions,
	}
}

type Validator struct {
	limits Limits
	policy *bluemonday.Policy
}

func NewValidator(limits Limits) *Validator {
	defaults := DefaultLimits()
	if limits.MaxDurationDays <= 0 {
		limits.MaxDurationDays = defaults.MaxDurationDays
	}
	if limits.MaxPromptLength <= 0 {
		limits.MaxPromptLength = defaults.MaxPromptLength
	}
	if limits.MaxTransactions <= 0 {
		limits.MaxTransactions = defaults.MaxTransactions
	}
	if limits.MaxReportPeriods <= 0 {
		limits.MaxReportPeriods = defaults.MaxReportPeriods
	}
	if limits.DefaultActivity == "" {
		limits.DefaultActivity = defaults.DefaultActivity
	}
	return &Validator{limits: limits, policy: bluemonday.StrictPolicy()}
}

// ValidateAddress checks for a 0x-prefixed 20-byte hex address.
func (v *Validator) ValidateAddress(field, addr string) error {
	const op = "Validator.ValidateAddress"

	if addr == "" {
		return errors.InvalidInput(op, nil, fmt.Sprintf("%s is required", field))
	}
	if !addressPattern.MatchString(addr) {
		return errors.InvalidInput(op, nil, fmt.Sprintf("%s must be a 0x-prefixed 40 character hex address", field))
	}
	return nil
}

// maxSanitizePasses bounds how many layers of entity encoding a prompt may
// carry before it is rejected.
const maxSanitizePasses = 6

// SanitizePrompt strips markup and surrounding whitespace and enforces the
// length limit. An empty result is allowed. The prompt is sanitized until it
// stops changing so that entity-encoded markup cannot survive decoding.
func (v *Validator) SanitizePrompt(prompt string) (string, error) {
	const op = "Validator.SanitizePrompt"

	clean, ok := v.stripMarkup(prompt)
	if !ok {
		return "", errors.InvalidInput(op, nil, "Prompt contains nested encoded markup")
	}
	clean = strings.TrimSpace(clean)
	if len([]rune(clean)) > v.limits.MaxPromptLength {
		return "", errors.InvalidInput(op, nil, fmt.Sprintf("Prompt must be at most %d characters", v.limits.MaxPromptLength))
	}
	return clean, nil
}

func (v *Validator) stripMarkup(s string) (string, bool) {
	for range maxSanitizePasses {
		next := html.UnescapeString(v.policy.Sanitize(s))
		if next == s {
			return s, true
		}
		s = next
	}
	return s, false
}

func (v *Validator) ValidateDuration(days int) error {
	const op = "Validator.ValidateDuration"

	if days <= 0 {
		return errors.InvalidInput(op, nil, "Duration must be a positive number of days")
	}
	if days > v.limits.MaxDurationDays {
		return errors.InvalidInput(op, nil, fmt.Sprintf("Duration must be at most %d days", v.limits.MaxDurationDays))
	}
	return nil
}

func (v *Validator) ValidateActivityType(activity models.ActivityType) error {
	const op = "Validator.ValidateActivityType"

	if !activity.Valid() {
		return errors.InvalidInput(op, nil, fmt.Sprintf("Unknown activity type %q", activity))
	}
	return nil
}

// ValidateCreate checks and normalizes a create request in place. Addresses
// are lowercased and the report address defaults to the owner.
func (v *Validator) ValidateCreate(req *models.CreateVideoRequest) error {
	req.OwnerAddress = strings.TrimSpace(req.OwnerAddress)
	if err := v.ValidateAddress("owner_address", req.OwnerAddress); err != nil {
		return err
	}
	req.OwnerAddress = strings.ToLower(req.OwnerAddress)

	req.ReportAddress = strings.TrimSpace(req.ReportAddress)
	if req.ReportAddress == "" {
		req.ReportAddress = req.OwnerAddress
	}
	if err := v.ValidateAddress("report_address", req.ReportAddress); err != nil {
		return err
	}
	req.ReportAddress = strings.ToLower(req.ReportAddress)

	prompt, err := v.SanitizePrompt(req.Prompt)
	if err != nil {
		return err
	}
	req.Prompt = prompt

	if err := v.ValidateDuration(req.Duration); err != nil {
		return err
	}

	if req.ActivityType == "" {
		req.ActivityType = v.limits.DefaultActivity
	}
	return v.ValidateActivityType(req.ActivityType)
}

// ValidateReportRequest checks an ad-hoc report request in place.
func (v *Validator) ValidateReportRequest(req *models.GenerateReportRequest) error {
	const op = "Validator.ValidateReportRequest"

	prompt, err := v.SanitizePrompt(req.Prompt)
	if err != nil {
		return err
	}
	req.Prompt = prompt

	if req.OwnerAddress != "" {
		if err := v.ValidateAddress("owner_address", strings.TrimSpace(req.OwnerAddress)); err != nil {
			return err
		}
		req.OwnerAddress = strings.ToLower(strings.TrimSpace(req.OwnerAddress))
	}

	if req.Periods < 0 || req.Periods > v.limits.MaxReportPeriods {
		return errors.InvalidInput(op, nil, fmt.Sprintf("Periods must be between 1 and %d", v.limits.MaxReportPeriods))
	}
	if req.Periods == 0 {
		req.Periods = 4
	}
	if len(req.Transactions) > v.limits.MaxTransactions {
		return errors.InvalidInput(op, nil, fmt.Sprintf("At most %d transactions are accepted", v.limits.MaxTransactions))
	}
	for i, tx := range req.Transactions {
		if _, ok := tx.Decimals(); !ok {
			return errors.InvalidInput(op, nil, fmt.Sprintf("Transaction %d has a tokenDecimal outside 0..%d", i, models.MaxTokenDecimals))
		}
	}
	return nil
}

// RequestValidationOpts holds options for request validation
type RequestValidationOpts struct {
	MaxContentLength int64
	AllowedMethods   []string
	RequireJSON      bool
}

// ValidateRequest validates HTTP requests
func (v *Validator) ValidateRequest(r *http.Request, opts RequestValidationOpts) error {
	const op = "Validator.ValidateRequest"

	if len(opts.AllowedMethods) > 0 {
		methodAllowed := false
		for _, method := range opts.AllowedMethods {
			if r.Method == method {
				methodAllowed = true
				break
			}
		}
		if !methodAllowed {
			return errors.InvalidInput(op, nil, fmt.Sprintf("Method %s not allowed", r.Method))
		}
	}

	if opts.RequireJSON {
		if contentType := r.Header.Get("Content-Type"); !strings.Contains(contentType, "application/json") {
			return errors.InvalidInput(op, nil, "Content-Type must be application/json")
		}
	}

	if opts.MaxContentLength > 0 && r.ContentLength > opts.MaxContentLength {
		return errors.InvalidInput(op, nil, "Request body too large")
	}

	return nil
}
