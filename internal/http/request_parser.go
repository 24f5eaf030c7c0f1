// Package http provides HTTP server and handler implementations.
//
// This file turns request bodies and query strings into validated DTOs.
// Bodies may be JSON or form-encoded; both end up as the same string fields
// so that one set of validation rules applies.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"depenses/internal/core"
)

const maxBodyBytes = 1 << 20

var (
	errMalformedBody = errors.New("malformed request body")
	errBodyTooLarge  = errors.New("request body too large")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RequestBodyParser reads a JSON or form body once and exposes its fields as
// trimmed strings.
type RequestBodyParser struct {
	jsonData map[string]any
	formData url.Values
}

// ParseRequestBody reads r's body. JSON is recognised by content type or by
// a leading '{'; anything else is parsed as a form.
func ParseRequestBody(w http.ResponseWriter, r *http.Request) (*RequestBodyParser, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge
		}
		return nil, fmt.Errorf("%w: %v", errMalformedBody, err)
	}

	p := &RequestBodyParser{}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		p.formData = url.Values{}
		return p, nil
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") || body[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&p.jsonData); err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformedBody, err)
		}
		if p.jsonData == nil {
			p.jsonData = map[string]any{}
		}
		return p, nil
	}

	p.formData, err = url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return p, nil
}

// Has reports whether key was sent with a non-null value.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		v, ok := p.jsonData[key]
		return ok && v != nil
	}
	_, ok := p.formData[key]
	return ok
}

// Get returns the sanitized value of key, or "".
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		return sanitizeInput(stringValue(p.jsonData[key]))
	}
	return sanitizeInput(p.formData.Get(key))
}

// Optional returns a pointer to the value of key, or nil when it was not sent.
func (p *RequestBodyParser) Optional(key string) *string {
	if !p.Has(key) {
		return nil
	}
	v := p.Get(key)
	return &v
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// validateStruct runs the struct tags and reports the failures as one
// invalid-input error.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate request: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return fmt.Errorf("%w: %s", core.ErrInvalidInput, strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "datetime":
		return field + " must be a date formatted YYYY-MM-DD"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	}
	return field + " is invalid"
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// createExpenseRequest is the body of POST /api/expenses.
type createExpenseRequest struct {
	Amount        string `validate:"required,max=32"`
	Currency      string `validate:"max=16"`
	Label         string `validate:"required,max=200"`
	Date          string `validate:"required,datetime=2006-01-02"`
	Remark        string `validate:"max=2000"`
	BalanceStatus string `validate:"omitempty,oneof=paid i_owe owed_to_me"`
	BalanceAmount string `validate:"max=32"`
}

func parseCreateExpense(p *RequestBodyParser) (core.NewExpense, error) {
	req := createExpenseRequest{
		Amount:        p.Get("amount"),
		Currency:      p.Get("currency"),
		Label:         p.Get("label"),
		Date:          p.Get("date"),
		Remark:        p.Get("remark"),
		BalanceStatus: strings.ToLower(p.Get("balanceStatus")),
		BalanceAmount: p.Get("balanceAmount"),
	}
	if err := validateStruct(req); err != nil {
		return core.NewExpense{}, err
	}

	var n core.NewExpense
	var err error
	if n.Amount, err = core.ParseAmount(req.Amount); err != nil {
		return n, fmt.Errorf("amount: %w", err)
	}
	if n.Currency, err = core.ParseCurrency(req.Currency); err != nil {
		return n, err
	}
	if n.BalanceStatus, err = core.ParseBalanceStatus(req.BalanceStatus); err != nil {
		return n, err
	}
	if req.BalanceAmount != "" {
		if n.BalanceAmount, err = core.ParseAmount(req.BalanceAmount); err != nil {
			return n, fmt.Errorf("balanceAmount: %w", err)
		}
	}
	if n.Date, err = parseDate(req.Date); err != nil {
		return n, err
	}
	n.Label = req.Label
	n.Remark = req.Remark
	return n, nil
}

// patchExpenseRequest is the body of PATCH /api/expenses/{id}. Absent fields
// are left unchanged.
type patchExpenseRequest struct {
	Amount        *string `validate:"omitempty,max=32"`
	Currency      *string `validate:"omitempty,max=16"`
	Label         *string `validate:"omitempty,max=200"`
	Date          *string `validate:"omitempty,datetime=2006-01-02"`
	Remark        *string `validate:"omitempty,max=2000"`
	BalanceStatus *string `validate:"omitempty,oneof=paid i_owe owed_to_me"`
	BalanceAmount *string `validate:"omitempty,max=32"`
}

func parsePatchExpense(p *RequestBodyParser) (core.ExpensePatch, error) {
	req := patchExpenseRequest{
		Amount:        p.Optional("amount"),
		Currency:      p.Optional("currency"),
		Label:         p.Optional("label"),
		Date:          p.Optional("date"),
		Remark:        p.Optional("remark"),
		BalanceStatus: p.Optional("balanceStatus"),
		BalanceAmount: p.Optional("balanceAmount"),
	}
	if req.BalanceStatus != nil {
		lower := strings.ToLower(*req.BalanceStatus)
		req.BalanceStatus = &lower
	}
	if err := validateStruct(req); err != nil {
		return core.ExpensePatch{}, err
	}

	var patch core.ExpensePatch
	if req.Amount != nil {
		d, err := core.ParseAmount(*req.Amount)
		if err != nil {
			return patch, fmt.Errorf("amount: %w", err)
		}
		patch.Amount = &d
	}
	if req.Currency != nil {
		c, err := core.ParseCurrency(*req.Currency)
		if err != nil {
			return patch, err
		}
		patch.Currency = &c
	}
	if req.Date != nil {
		d, err := parseDate(*req.Date)
		if err != nil {
			return patch, err
		}
		patch.Date = &d
	}
	if req.BalanceStatus != nil {
		s, err := core.ParseBalanceStatus(*req.BalanceStatus)
		if err != nil {
			return patch, err
		}
		patch.BalanceStatus = &s
	}
	if req.BalanceAmount != nil {
		d, err := core.ParseAmount(*req.BalanceAmount)
		if err != nil {
			return patch, fmt.Errorf("balanceAmount: %w", err)
		}
		patch.BalanceAmount = &d
	}
	patch.Label = req.Label
	patch.Remark = req.Remark
	return patch, nil
}

type renameLabelRequest struct {
	NewLabel string `validate:"required,max=200"`
}

func parseRenameLabel(p *RequestBodyParser) (string, error) {
	req := renameLabelRequest{NewLabel: p.Get("newLabel")}
	if err := validateStruct(req); err != nil {
		return "", err
	}
	return req.NewLabel, nil
}

// pagesRequest is the body of POST /api/view/pages.
type pagesRequest struct {
	Day          string `validate:"required,datetime=2006-01-02"`
	Page         *int   `validate:"omitempty,min=1"`
	ItemsPerPage *int   `validate:"omitempty,oneof=10 20 50 100"`
}

func parsePages(p *RequestBodyParser) (pagesRequest, error) {
	req := pagesRequest{Day: p.Get("day")}
	var err error
	if req.Page, err = optionalInt(p, "page"); err != nil {
		return req, err
	}
	if req.ItemsPerPage, err = optionalInt(p, "itemsPerPage"); err != nil {
		return req, err
	}
	if req.Page == nil && req.ItemsPerPage == nil {
		return req, fmt.Errorf("%w: page or itemsPerPage is required", core.ErrInvalidInput)
	}
	return req, validateStruct(req)
}

// accordionRequest is the body of POST /api/view/accordion: either a
// command or one group key to toggle.
type accordionRequest struct {
	Command string `validate:"omitempty,oneof=default all-open all-closed"`
	Toggle  string `validate:"max=300"`
}

func parseAccordion(p *RequestBodyParser) (accordionRequest, error) {
	req := accordionRequest{Command: p.Get("command"), Toggle: p.Get("toggle")}
	if req.Command == "" && req.Toggle == "" {
		return req, fmt.Errorf("%w: command or toggle is required", core.ErrInvalidInput)
	}
	return req, validateStruct(req)
}

func optionalInt(p *RequestBodyParser, key string) (*int, error) {
	if !p.Has(key) || p.Get(key) == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(p.Get(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer", core.ErrInvalidInput, key)
	}
	return &n, nil
}

func parseDate(s string) (time.Time, error) {
	return core.ParseDay(s)
}
