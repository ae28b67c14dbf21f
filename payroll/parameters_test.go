package payroll_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/payroll"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParameters_PicksVersionInForce(t *testing.T) {
	// GIVEN: A parameter with versions starting 2024-01-01 (100) and
	//        2025-01-01 (150), registered out of order
	// WHEN: Resolving at various dates
	// THEN: The version starting latest at or before the date wins

	params := payroll.NewParameters(&payroll.RuleParameter{
		Code: "prof_tax",
		Versions: []payroll.ParameterVersion{
			{DateFrom: date(2025, time.January, 1), Value: decimal.NewFromInt(150)},
			{DateFrom: date(2024, time.January, 1), Value: decimal.NewFromInt(100)},
		},
	})

	cases := []struct {
		at   time.Time
		want int64
	}{
		{date(2024, time.June, 15), 100},
		{date(2025, time.January, 1), 150},
		{date(2026, time.March, 1), 150},
	}
	for _, tc := range cases {
		got, err := params.Parameter("prof_tax", tc.at)
		if err != nil {
			t.Fatalf("Parameter at %s: %v", tc.at.Format("2006-01-02"), err)
		}
		if !got.Equal(decimal.NewFromInt(tc.want)) {
			t.Errorf("at %s = %s, want %d", tc.at.Format("2006-01-02"), got, tc.want)
		}
	}
}

func TestParameters_NoVersionInForceYet(t *testing.T) {
	params := payroll.NewParameters(&payroll.RuleParameter{
		Code: "prof_tax",
		Versions: []payroll.ParameterVersion{
			{DateFrom: date(2024, time.January, 1), Value: decimal.NewFromInt(100)},
		},
	})

	_, err := params.Parameter("prof_tax", date(2023, time.June, 1))
	if !errors.Is(err, engine.ErrUnknownParameter) {
		t.Fatalf("expected ErrUnknownParameter before first version, got %v", err)
	}
}

func TestParameters_UnknownCode(t *testing.T) {
	params := payroll.NewParameters()
	_, err := params.Parameter("ghost", date(2025, time.January, 1))
	if !errors.Is(err, engine.ErrUnknownParameter) {
		t.Fatalf("expected ErrUnknownParameter, got %v", err)
	}
}

func TestParameters_SetReplaces(t *testing.T) {
	params := payroll.NewParameters(&payroll.RuleParameter{
		Code: "rate",
		Versions: []payroll.ParameterVersion{
			{DateFrom: date(2024, time.January, 1), Value: decimal.NewFromInt(1)},
		},
	})
	params.Set(&payroll.RuleParameter{
		Code: "rate",
		Versions: []payroll.ParameterVersion{
			{DateFrom: date(2024, time.January, 1), Value: decimal.NewFromInt(2)},
		},
	})

	got, err := params.Parameter("rate", date(2024, time.June, 1))
	if err != nil {
		t.Fatalf("Parameter: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(2)) {
		t.Errorf("got %s, want the replaced value 2", got)
	}
}
