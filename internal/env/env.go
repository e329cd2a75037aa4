// Package env composes the complete environment of a service.
package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

type Env struct {
	env Var // cached base from OS environment
}

func New() *Env { return &Env{} }

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	e.env = Parse(os.Environ())
}

// FromList sets the base from "K=V" pairs instead of the OS environment.
func (e *Env) FromList(kvs []string) {
	e.env = Parse(kvs)
}

// Parse turns "K=V" pairs into a Var, skipping malformed entries.
func Parse(kvs []string) Var {
	m := make(Var, len(kvs))
	for _, kv := range kvs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

// Merge composes the final environment applying order:
// base = OS env (or cached), then perService overrides.
// ${VAR} references in service values are expanded against the composed map
// (simple expansion, no recursion); unknown references are left as is.
func (e *Env) Merge(perService map[string]string) Var {
	if e.env == nil {
		e.FromOS()
	}
	m := make(Var, len(e.env)+len(perService))
	for k, v := range e.env {
		m[k] = v
	}
	for k, v := range perService {
		if k == "" {
			continue
		}
		m[k] = v
	}
	for k := range perService {
		if k == "" {
			continue
		}
		m[k] = expand(m[k], m)
	}
	return m
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	// longest keys first so ${AB} is not clobbered by ${A}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	res := s
	for _, k := range keys {
		res = strings.ReplaceAll(res, "${"+k+"}", m[k])
	}
	return res
}
