/*
parameters.go - Time-versioned rule parameter lookup

PURPOSE:
  Resolves payroll.parameter(code, date) calls: each parameter carries
  dated versions, and a lookup picks the version starting latest at or
  before the asked date. A code with no parameter, or no version in
  force yet, is a configuration problem and errors out rather than
  defaulting to zero.
*/
package payroll

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
)

// Parameters is an in-memory engine.ParameterSource.
type Parameters struct {
	mu     sync.RWMutex
	byCode map[string]*RuleParameter
}

func NewParameters(params ...*RuleParameter) *Parameters {
	p := &Parameters{byCode: make(map[string]*RuleParameter)}
	for _, rp := range params {
		p.Set(rp)
	}
	return p
}

// Set registers or replaces a parameter, keeping versions date-sorted.
func (p *Parameters) Set(rp *RuleParameter) {
	cp := *rp
	cp.Versions = append([]ParameterVersion(nil), rp.Versions...)
	sort.Slice(cp.Versions, func(i, j int) bool {
		return cp.Versions[i].DateFrom.Before(cp.Versions[j].DateFrom)
	})
	p.mu.Lock()
	p.byCode[cp.Code] = &cp
	p.mu.Unlock()
}

// Parameter implements engine.ParameterSource.
func (p *Parameters) Parameter(code string, at time.Time) (decimal.Decimal, error) {
	p.mu.RLock()
	rp, ok := p.byCode[code]
	p.mu.RUnlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", engine.ErrUnknownParameter, code)
	}
	value := decimal.Zero
	found := false
	for _, v := range rp.Versions {
		if v.DateFrom.After(at) {
			break
		}
		value, found = v.Value, true
	}
	if !found {
		return decimal.Zero, fmt.Errorf("%w: %q has no version in force at %s",
			engine.ErrUnknownParameter, code, at.Format("2006-01-02"))
	}
	return value, nil
}
