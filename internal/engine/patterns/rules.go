package patterns

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"codeintel/internal/engine/facts"
)

// typeView is a type declared (or extended with methods) in one file.
type typeView struct {
	sym     facts.Symbol
	members []facts.Symbol
}

func (t *typeView) methods() []facts.Symbol {
	var res []facts.Symbol
	for _, m := range t.members {
		if m.Kind.IsCallable() {
			res = append(res, m)
		}
	}
	return res
}

func (t *typeView) fields() []facts.Symbol {
	var res []facts.Symbol
	for _, m := range t.members {
		if !m.Kind.IsCallable() && !m.Kind.IsTypeLike() {
			res = append(res, m)
		}
	}
	return res
}

type fileView struct {
	path      string
	dir       string
	types     map[string]*typeView
	typeNames []string
	funcs     []facts.Symbol
	vars      []facts.Symbol
}

func newFileView(f facts.FileFacts) *fileView {
	v := &fileView{
		path:  f.Path,
		dir:   path.Dir(f.Path),
		types: make(map[string]*typeView),
	}
	syms := append([]facts.Symbol(nil), f.Symbols...)
	sort.SliceStable(syms, func(i, j int) bool {
		if syms[i].QualifiedName() != syms[j].QualifiedName() {
			return syms[i].QualifiedName() < syms[j].QualifiedName()
		}
		return syms[i].Line < syms[j].Line
	})

	for _, s := range syms {
		if s.Parent == "" && s.Kind.IsTypeLike() {
			if _, ok := v.types[s.Name]; !ok {
				v.types[s.Name] = &typeView{sym: s}
			}
		}
	}
	for _, s := range syms {
		switch {
		case s.Parent != "":
			tv, ok := v.types[s.Parent]
			if !ok {
				// Methods on a type declared in another file.
				tv = &typeView{sym: facts.Symbol{Name: s.Parent, Kind: facts.KindType, Line: s.Line}}
				v.types[s.Parent] = tv
			}
			tv.members = append(tv.members, s)
		case s.Kind.IsCallable():
			v.funcs = append(v.funcs, s)
		case s.Kind == facts.KindVariable || s.Kind == facts.KindConstant:
			v.vars = append(v.vars, s)
		}
	}
	for name := range v.types {
		v.typeNames = append(v.typeNames, name)
	}
	sort.Strings(v.typeNames)
	return v
}

func (v *fileView) isInterface(name string) bool {
	tv, ok := v.types[name]
	if !ok {
		return false
	}
	return tv.sym.Kind == facts.KindInterface || tv.sym.HasModifier("abstract")
}

func (v *fileView) loc(s facts.Symbol) Location {
	return Location{Path: v.path, Symbol: s.QualifiedName(), Line: s.Line}
}

// candidate accumulates evidence for one (kind, symbol) pair. Only
// candidates with at least one anchoring rule are reported.
type candidate struct {
	kind     Kind
	symbol   string
	line     int
	anchored bool
	evidence []Evidence
}

type candidates struct {
	byKey map[string]*candidate
}

func newCandidates() *candidates {
	return &candidates{byKey: make(map[string]*candidate)}
}

func (c *candidates) add(kind Kind, owner facts.Symbol, anchor bool, ev Evidence) {
	key := string(kind) + "\x00" + owner.QualifiedName()
	cand, ok := c.byKey[key]
	if !ok {
		cand = &candidate{kind: kind, symbol: owner.QualifiedName(), line: owner.Line}
		c.byKey[key] = cand
	}
	if anchor {
		cand.anchored = true
	}
	cand.evidence = append(cand.evidence, ev)
}

func (c *candidates) get(kind Kind, symbol string) *candidate {
	return c.byKey[string(kind)+"\x00"+symbol]
}

// detector evaluates the rules of one kind against a file.
type detector func(v *fileView, c *candidates)

var detectors = map[Kind]detector{
	KindSingleton:  detectSingleton,
	KindFactory:    detectFactory,
	KindBuilder:    detectBuilder,
	KindObserver:   detectObserver,
	KindStrategy:   detectStrategy,
	KindDecorator:  detectDecorator,
	KindAdapter:    detectAdapter,
	KindRepository: detectRepository,
}

func detectSingleton(v *fileView, c *candidates) {
	for _, name := range v.typeNames {
		tv := v.types[name]
		lname := strings.ToLower(name)
		for _, m := range tv.members {
			switch {
			case isConstructor(m, name) && (m.HasModifier("private") || m.HasModifier("protected")):
				c.add(KindSingleton, tv.sym, true, Evidence{
					Rule:        "singleton.private_constructor",
					Description: "constructor is not publicly accessible",
					Weight:      0.5,
					Location:    v.loc(m),
				})
			case m.Kind.IsCallable() && m.HasModifier("static") && returnsType(m, name):
				c.add(KindSingleton, tv.sym, true, Evidence{
					Rule:        "singleton.static_accessor",
					Description: fmt.Sprintf("static accessor %s returns %s", m.Name, name),
					Weight:      0.6,
					Location:    v.loc(m),
				})
			case !m.Kind.IsCallable() && m.HasModifier("static") && baseTypeName(m.Type) == name:
				c.add(KindSingleton, tv.sym, false, Evidence{
					Rule:        "singleton.static_instance",
					Description: fmt.Sprintf("static field %s holds the only %s", m.Name, name),
					Weight:      0.4,
					Location:    v.loc(m),
				})
			}
		}

		hasInstanceVar := false
		for _, vr := range v.vars {
			if baseTypeName(vr.Type) == name && !vr.Exported {
				hasInstanceVar = true
				c.add(KindSingleton, tv.sym, false, Evidence{
					Rule:        "singleton.static_instance",
					Description: fmt.Sprintf("package variable %s holds the only %s", vr.Name, name),
					Weight:      0.4,
					Location:    v.loc(vr),
				})
			}
		}
		for _, fn := range v.funcs {
			if !returnsType(fn, name) {
				continue
			}
			lfn := strings.ToLower(fn.Name)
			named := strings.Contains(lfn, "instance") || strings.Contains(lfn, "shared") || lfn == "get"+lname
			if !named && !hasInstanceVar {
				continue
			}
			c.add(KindSingleton, tv.sym, true, Evidence{
				Rule:        "singleton.static_accessor",
				Description: fmt.Sprintf("accessor %s returns %s", fn.Name, name),
				Weight:      0.6,
				Location:    v.loc(fn),
			})
			if callsMatching(fn, "once") {
				c.add(KindSingleton, tv.sym, false, Evidence{
					Rule:        "singleton.lazy_once",
					Description: "initialization guarded by a once primitive",
					Weight:      0.3,
					Location:    v.loc(fn),
				})
			}
		}
	}
}

func detectFactory(v *fileView, c *candidates) {
	for _, name := range v.typeNames {
		tv := v.types[name]
		if !hasSuffixFold(name, "Factory") {
			continue
		}
		c.add(KindFactory, tv.sym, true, Evidence{
			Rule:        "factory.name",
			Description: fmt.Sprintf("%s is named as a factory", name),
			Weight:      0.6,
			Location:    v.loc(tv.sym),
		})
		var creators []facts.Symbol
		for _, m := range tv.methods() {
			if hasAnyPrefixFold(m.Name, "create", "make", "new", "build") && len(m.Returns) > 0 {
				creators = append(creators, m)
			}
		}
		for _, m := range firstN(creators, 3) {
			c.add(KindFactory, tv.sym, false, Evidence{
				Rule:        "factory.creation_method",
				Description: fmt.Sprintf("%s creates %s", m.Name, strings.Join(m.Returns, ", ")),
				Weight:      0.2,
				Location:    v.loc(m),
			})
		}
	}

	var units []facts.Symbol
	units = append(units, v.funcs...)
	for _, name := range v.typeNames {
		if hasSuffixFold(name, "Factory") {
			continue
		}
		units = append(units, v.types[name].methods()...)
	}
	for _, fn := range units {
		if len(fn.Returns) == 0 {
			continue
		}
		abstract := ""
		for _, r := range fn.Returns {
			if v.isInterface(baseTypeName(r)) {
				abstract = baseTypeName(r)
				break
			}
		}
		creates := hasAnyPrefixFold(fn.Name, "create", "make") && productType(fn) != ""
		constructsAbstraction := hasAnyPrefixFold(fn.Name, "new") && abstract != ""
		if !creates && !constructsAbstraction {
			continue
		}
		if creates {
			c.add(KindFactory, fn, true, Evidence{
				Rule:        "factory.creation_function",
				Description: fmt.Sprintf("%s creates %s", fn.Name, strings.Join(fn.Returns, ", ")),
				Weight:      0.5,
				Location:    v.loc(fn),
			})
		}
		if abstract != "" {
			c.add(KindFactory, fn, true, Evidence{
				Rule:        "factory.returns_abstraction",
				Description: fmt.Sprintf("%s hides the concrete type behind %s", fn.Name, abstract),
				Weight:      0.4,
				Location:    v.loc(fn),
			})
		}
		if hasDecision(fn, facts.DecisionSwitch, facts.DecisionCase) {
			c.add(KindFactory, fn, false, Evidence{
				Rule:        "factory.conditional_creation",
				Description: fmt.Sprintf("%s selects the product by case analysis", fn.Name),
				Weight:      0.2,
				Location:    v.loc(fn),
			})
		}
	}
}

func detectBuilder(v *fileView, c *candidates) {
	for _, name := range v.typeNames {
		tv := v.types[name]
		if hasSuffixFold(name, "Builder") {
			c.add(KindBuilder, tv.sym, true, Evidence{
				Rule:        "builder.name",
				Description: fmt.Sprintf("%s is named as a builder", name),
				Weight:      0.4,
				Location:    v.loc(tv.sym),
			})
		}
		var fluent []facts.Symbol
		for _, m := range tv.methods() {
			if isConstructor(m, name) {
				continue
			}
			if returnsType(m, name) {
				fluent = append(fluent, m)
				continue
			}
			if strings.EqualFold(m.Name, "build") && len(m.Returns) > 0 {
				c.add(KindBuilder, tv.sym, true, Evidence{
					Rule:        "builder.build_method",
					Description: fmt.Sprintf("%s produces %s", m.Name, strings.Join(m.Returns, ", ")),
					Weight:      0.5,
					Location:    v.loc(m),
				})
			}
		}
		for _, m := range firstN(fluent, 4) {
			c.add(KindBuilder, tv.sym, len(fluent) >= 2, Evidence{
				Rule:        "builder.fluent_setter",
				Description: fmt.Sprintf("%s returns the builder for chaining", m.Name),
				Weight:      0.2,
				Location:    v.loc(m),
			})
		}
	}
}

func detectObserver(v *fileView, c *candidates) {
	for _, name := range v.typeNames {
		tv := v.types[name]
		for _, m := range tv.methods() {
			switch {
			case hasAnyPrefixFold(m.Name, "subscribe", "register", "addlistener", "addobserver", "addhandler", "addeventlistener", "attach"):
				c.add(KindObserver, tv.sym, true, Evidence{
					Rule:        "observer.subscribe",
					Description: fmt.Sprintf("%s registers observers", m.Name),
					Weight:      0.5,
					Location:    v.loc(m),
				})
			case hasAnyPrefixFold(m.Name, "notify", "emit", "publish", "fire", "dispatch", "broadcast"):
				c.add(KindObserver, tv.sym, true, Evidence{
					Rule:        "observer.notify",
					Description: fmt.Sprintf("%s notifies observers", m.Name),
					Weight:      0.5,
					Location:    v.loc(m),
				})
			case hasAnyPrefixFold(m.Name, "unsubscribe", "unregister", "removelistener", "removeobserver", "detach"):
				c.add(KindObserver, tv.sym, false, Evidence{
					Rule:        "observer.unsubscribe",
					Description: fmt.Sprintf("%s removes observers", m.Name),
					Weight:      0.2,
					Location:    v.loc(m),
				})
			}
		}
		for _, f := range tv.fields() {
			if containsAnyFold(f.Name, "listener", "observer", "subscriber", "handlers", "callbacks") {
				c.add(KindObserver, tv.sym, false, Evidence{
					Rule:        "observer.listener_collection",
					Description: fmt.Sprintf("%s keeps registered observers", f.Name),
					Weight:      0.3,
					Location:    v.loc(f),
				})
			}
		}
	}
}

func detectStrategy(v *fileView, c *candidates) {
	implementers := make(map[string][]string)
	for _, name := range v.typeNames {
		for _, b := range v.types[name].sym.Bases {
			base := baseTypeName(b)
			implementers[base] = append(implementers[base], name)
		}
	}

	for _, name := range v.typeNames {
		if !v.isInterface(name) {
			continue
		}
		tv := v.types[name]
		anchored := false
		if hasAnySuffixFold(name, "Strategy", "Policy") {
			anchored = true
			c.add(KindStrategy, tv.sym, true, Evidence{
				Rule:        "strategy.name",
				Description: fmt.Sprintf("%s is named as a strategy", name),
				Weight:      0.5,
				Location:    v.loc(tv.sym),
			})
		}
		if impls := implementers[name]; len(impls) >= 2 {
			anchored = true
			weight := 0.3 + 0.1*float64(len(impls))
			if weight > 0.6 {
				weight = 0.6
			}
			c.add(KindStrategy, tv.sym, true, Evidence{
				Rule:        "strategy.interchangeable_implementations",
				Description: fmt.Sprintf("%d interchangeable implementations: %s", len(impls), strings.Join(impls, ", ")),
				Weight:      weight,
				Location:    v.loc(tv.sym),
			})
		}
		if !anchored {
			continue
		}
		if n := len(tv.methods()); n > 0 && n <= 3 {
			c.add(KindStrategy, tv.sym, false, Evidence{
				Rule:        "strategy.narrow_interface",
				Description: fmt.Sprintf("%s exposes %d operation(s)", name, n),
				Weight:      0.2,
				Location:    v.loc(tv.sym),
			})
		}
		for _, holder := range v.typeNames {
			if holder == name {
				continue
			}
			for _, f := range v.types[holder].fields() {
				if baseTypeName(f.Type) == name {
					c.add(KindStrategy, tv.sym, false, Evidence{
						Rule:        "strategy.context_holder",
						Description: fmt.Sprintf("%s delegates to a %s held in %s", holder, name, f.Name),
						Weight:      0.3,
						Location:    v.loc(f),
					})
				}
			}
		}
	}
}

func detectDecorator(v *fileView, c *candidates) {
	for _, name := range v.typeNames {
		tv := v.types[name]
		if hasAnySuffixFold(name, "Decorator", "Wrapper", "Middleware") {
			c.add(KindDecorator, tv.sym, true, Evidence{
				Rule:        "decorator.name",
				Description: fmt.Sprintf("%s is named as a decorator", name),
				Weight:      0.4,
				Location:    v.loc(tv.sym),
			})
		}
		for _, b := range tv.sym.Bases {
			base := baseTypeName(b)
			for _, f := range tv.fields() {
				if baseTypeName(f.Type) != base {
					continue
				}
				c.add(KindDecorator, tv.sym, true, Evidence{
					Rule:        "decorator.wraps_same_abstraction",
					Description: fmt.Sprintf("%s implements %s and wraps one in %s", name, base, f.Name),
					Weight:      0.6,
					Location:    v.loc(f),
				})
				var delegating []facts.Symbol
				for _, m := range tv.methods() {
					if callsMatching(m, "."+strings.ToLower(m.Name)) {
						delegating = append(delegating, m)
					}
				}
				for _, m := range firstN(delegating, 3) {
					c.add(KindDecorator, tv.sym, false, Evidence{
						Rule:        "decorator.delegates_call",
						Description: fmt.Sprintf("%s forwards to the wrapped %s", m.Name, base),
						Weight:      0.2,
						Location:    v.loc(m),
					})
				}
			}
		}
	}
}

func detectAdapter(v *fileView, c *candidates) {
	for _, name := range v.typeNames {
		tv := v.types[name]
		if hasSuffixFold(name, "Adapter") {
			c.add(KindAdapter, tv.sym, true, Evidence{
				Rule:        "adapter.name",
				Description: fmt.Sprintf("%s is named as an adapter", name),
				Weight:      0.5,
				Location:    v.loc(tv.sym),
			})
		}
		if len(tv.sym.Bases) == 0 {
			continue
		}
		bases := make(map[string]bool, len(tv.sym.Bases))
		for _, b := range tv.sym.Bases {
			bases[baseTypeName(b)] = true
		}
		for _, f := range tv.fields() {
			adaptee := baseTypeName(f.Type)
			if adaptee == "" || bases[adaptee] || isBuiltinType(adaptee) {
				continue
			}
			prefix := strings.ToLower(f.Name) + "."
			calls := 0
			for _, m := range tv.methods() {
				if callsMatching(m, prefix) {
					calls++
				}
			}
			if calls == 0 {
				continue
			}
			c.add(KindAdapter, tv.sym, true, Evidence{
				Rule: "adapter.translates_to_adaptee",
				Description: fmt.Sprintf("%s satisfies %s by calling into %s (%d method(s))",
					name, strings.Join(tv.sym.Bases, ", "), adaptee, calls),
				Weight:   0.4,
				Location: v.loc(f),
			})
		}
	}
}

func detectRepository(v *fileView, c *candidates) {
	dataDir := false
	for _, seg := range strings.Split(v.dir, "/") {
		switch strings.ToLower(seg) {
		case "repository", "repositories", "repo", "repos", "store", "storage", "dao", "db", "persistence":
			dataDir = true
		}
	}

	for _, name := range v.typeNames {
		tv := v.types[name]
		named := hasAnySuffixFold(name, "Repository", "Repo", "Store", "DAO")
		if named {
			c.add(KindRepository, tv.sym, true, Evidence{
				Rule:        "repository.name",
				Description: fmt.Sprintf("%s is named as a repository", name),
				Weight:      0.5,
				Location:    v.loc(tv.sym),
			})
		}
		var crud []facts.Symbol
		for _, m := range tv.methods() {
			if hasAnyPrefixFold(m.Name, "find", "get", "save", "create", "update", "delete", "list", "insert", "remove", "upsert", "query") {
				crud = append(crud, m)
			}
		}
		if len(crud) < 2 {
			continue
		}
		for _, m := range firstN(crud, 4) {
			c.add(KindRepository, tv.sym, len(crud) >= 4, Evidence{
				Rule:        "repository.crud_method",
				Description: fmt.Sprintf("%s is a persistence operation", m.Name),
				Weight:      0.15,
				Location:    v.loc(m),
			})
		}
		if dataDir {
			c.add(KindRepository, tv.sym, false, Evidence{
				Rule:        "repository.data_access_location",
				Description: fmt.Sprintf("declared under data-access directory %s", v.dir),
				Weight:      0.2,
				Location:    Location{Path: v.path},
			})
		}
	}
}

func isConstructor(m facts.Symbol, typeName string) bool {
	switch strings.ToLower(m.Name) {
	case "constructor", "__init__", "init", "new", "__new__":
		return m.Kind.IsCallable()
	}
	return m.Kind.IsCallable() && m.Name == typeName
}

func returnsType(s facts.Symbol, typeName string) bool {
	for _, r := range s.Returns {
		if baseTypeName(r) == typeName {
			return true
		}
	}
	return false
}

// baseTypeName strips pointers, slices, package qualifiers and generic
// arguments: "*pkg.Repo[T]" becomes "Repo".
func baseTypeName(t string) string {
	t = strings.TrimSpace(t)
	t = strings.TrimLeft(t, "*&[]")
	if i := strings.IndexAny(t, "[<("); i >= 0 {
		t = t[:i]
	}
	if i := strings.LastIndexAny(t, ".:"); i >= 0 {
		t = t[i+1:]
	}
	return t
}

func isBuiltinType(t string) bool {
	switch strings.ToLower(t) {
	case "string", "int", "int32", "int64", "uint", "uint32", "uint64", "float", "float32", "float64",
		"bool", "boolean", "byte", "rune", "any", "object", "error", "map", "list", "dict", "number", "str":
		return true
	}
	return false
}

// productType is the first returned type that is not a builtin or error.
func productType(s facts.Symbol) string {
	for _, r := range s.Returns {
		if t := baseTypeName(r); t != "" && !isBuiltinType(t) {
			return t
		}
	}
	return ""
}

func callsMatching(s facts.Symbol, needle string) bool {
	for _, call := range s.Calls {
		if strings.Contains(strings.ToLower(call), needle) {
			return true
		}
	}
	return false
}

func hasDecision(s facts.Symbol, kinds ...facts.DecisionKind) bool {
	if s.Shape == nil {
		return false
	}
	for _, d := range s.Shape.Decisions {
		for _, k := range kinds {
			if d.Kind == k {
				return true
			}
		}
	}
	return false
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) > len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}

func hasAnySuffixFold(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if hasSuffixFold(s, suf) {
			return true
		}
	}
	return false
}

func hasAnyPrefixFold(s string, prefixes ...string) bool {
	ls := strings.ToLower(s)
	for _, p := range prefixes {
		if strings.HasPrefix(ls, p) {
			return true
		}
	}
	return false
}

func containsAnyFold(s string, needles ...string) bool {
	ls := strings.ToLower(s)
	for _, n := range needles {
		if strings.Contains(ls, n) {
			return true
		}
	}
	return false
}

func firstN(syms []facts.Symbol, n int) []facts.Symbol {
	if len(syms) > n {
		return syms[:n]
	}
	return syms
}
