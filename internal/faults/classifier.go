package faults

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net"
	"os"
	"strconv"
	"sync"
	"syscall"
)

// Rule maps errors matched by Match to a category and severity.
type Rule struct {
	Name     string
	Match    func(error) bool
	Category Category
	Severity Severity
}

// Classifier evaluates rules in registration order. The first match wins;
// an error no rule matches is (CategoryUnknown, SeverityError).
type Classifier struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewClassifier creates a classifier with the given rules.
func NewClassifier(rules ...Rule) *Classifier {
	c := &Classifier{}
	for _, r := range rules {
		c.Register(r)
	}
	return c
}

// Register appends a rule. Rules with a nil matcher are ignored.
func (c *Classifier) Register(rule Rule) {
	if rule.Match == nil {
		return
	}
	c.mu.Lock()
	c.rules = append(c.rules, rule)
	c.mu.Unlock()
}

// Classify returns the category and severity for err.
func (c *Classifier) Classify(err error) (Category, Severity) {
	if err == nil {
		return CategoryUnknown, SeverityError
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.rules {
		if r.Match(err) {
			return r.Category, r.Severity
		}
	}
	return CategoryUnknown, SeverityError
}

// Rules returns a copy of the registered rules.
func (c *Classifier) Rules() []Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// DefaultRules returns the built-in rule set. Order matters: the typed Fault
// rules come first so an explicit category always beats the wrapped cause.
func DefaultRules() []Rule {
	rules := make([]Rule, 0, 12)
	for _, cat := range AllCategories() {
		sev := SeverityError
		if cat == CategoryValidation {
			sev = SeverityWarning
		}
		rules = append(rules, Rule{
			Name:     "fault:" + string(cat),
			Match:    faultOf(cat),
			Category: cat,
			Severity: sev,
		})
	}
	return append(rules,
		Rule{Name: "cancelled", Match: isCancelled, Category: CategoryWorkflow, Severity: SeverityInfo},
		Rule{Name: "not-exist", Match: is(fs.ErrNotExist), Category: CategoryFileSystem, Severity: SeverityError},
		Rule{Name: "permission", Match: is(fs.ErrPermission), Category: CategoryPermission, Severity: SeverityError},
		Rule{Name: "network", Match: isNetwork, Category: CategoryNetwork, Severity: SeverityError},
		Rule{Name: "validation", Match: isValidation, Category: CategoryValidation, Severity: SeverityWarning},
	)
}

func faultOf(cat Category) func(error) bool {
	return func(err error) bool {
		var f *Fault
		return errors.As(err, &f) && f.Category == cat
	}
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

func isCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

func isNetwork(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	return errors.As(err, &opErr) || errors.As(err, &dnsErr)
}

func isValidation(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var numErr *strconv.NumError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.As(err, &numErr)
}
