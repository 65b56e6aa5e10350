package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSafeParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"valid integer", "100", "100"},
		{"valid decimal", "3.14", "3.14"},
		{"zero", "0", "0"},
		{"negative", "-5.5", "-5.5"},
		{"empty string", "", "0"},
		{"invalid string", "abc", "0"},
		{"small fraction", "0.0000001", "0.0000001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SafeParse(tt.input)
			want, _ := decimal.NewFromString(tt.want)
			if !got.Equal(want) {
				t.Errorf("SafeParse(%q) = %s, want %s", tt.input, got, want)
			}
		})
	}
}

func TestToStroops(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{"extra digit truncated", "1.23456789", 12345678},
		{"bridge amount", "1.5", 15000000},
		{"one stroop", "0.0000001", 1},
		{"just below two stroops", "0.00000019", 1},
		{"whole", "10", 100000000},
		{"seven digits exact", "0.9999999", 9999999},
		{"ledger maximum", "922337203685.4775807", 9223372036854775807},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToStroops(tt.input)
			if err != nil {
				t.Fatalf("ToStroops(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ToStroops(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestToStroopsNeverExceedsInput(t *testing.T) {
	inputs := []string{"0.12345678", "3.99999999", "7.00000009", "123.45678912"}
	for _, in := range inputs {
		got, err := ToStroops(in)
		if err != nil {
			t.Fatalf("ToStroops(%q) error: %v", in, err)
		}
		back := decimal.New(got, -7)
		if back.GreaterThan(decimal.RequireFromString(in)) {
			t.Errorf("ToStroops(%q) = %d authorizes more than entered", in, got)
		}
	}
}

func TestToStroopsRejects(t *testing.T) {
	for _, in := range []string{"", "0", "-1", "abc", "0.00000001", "922337203685.4775808"} {
		if _, err := ToStroops(in); !errors.Is(err, ErrInvalidIntent) {
			t.Errorf("ToStroops(%q) error = %v, want ErrInvalidIntent", in, err)
		}
	}
}

func TestFromStroops(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{15000000, "1.5"},
		{1, "0.0000001"},
		{100000000, "10"},
	}
	for _, tt := range tests {
		if got := FromStroops(tt.in); got != tt.want {
			t.Errorf("FromStroops(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestApplySlippage(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		bps    int
		want   string
	}{
		{"one percent", "100", 100, "99"},
		{"floors to seven digits", "1.2345678", 100, "1.2222221"},
		{"zero bps", "5.5", 0, "5.5"},
		{"negative bps clamps", "5.5", -10, "5.5"},
		{"invalid amount", "abc", 100, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ApplySlippage(tt.amount, tt.bps); got != tt.want {
				t.Errorf("ApplySlippage(%q, %d) = %q, want %q", tt.amount, tt.bps, got, tt.want)
			}
		})
	}
}

func TestDivideWithPrecision(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want string
	}{
		{"normal", "10", "4", "2.5"},
		{"repeating", "1", "3", "0.3333333"},
		{"division by zero", "10", "0", "0"},
		{"invalid", "abc", "2", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DivideWithPrecision(tt.a, tt.b); got != tt.want {
				t.Errorf("DivideWithPrecision(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	subErr := &SubmissionError{Status: 400, Title: "Transaction Failed", ResultCodes: ResultCodes{Transaction: "tx_failed", Operations: []string{"op_under_dest_min"}}}
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{ErrAccountNotFound, KindAccountNotFound},
		{errors.Join(errors.New("ctx"), ErrSigningUnavailable), KindSigningUnavailable},
		{subErr, KindSubmissionFailed},
		{errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.want {
			t.Errorf("ClassifyError(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
	if !errors.Is(subErr, ErrSubmissionFailed) {
		t.Error("SubmissionError must match ErrSubmissionFailed")
	}
	if subErr.ResultCodes.String() != "tx_failed, op_under_dest_min" {
		t.Errorf("ResultCodes.String() = %q", subErr.ResultCodes.String())
	}
}
