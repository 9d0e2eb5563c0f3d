// Package extract turns a parser facade's flat RawSymbol list into a
// tree of model.Definition records with Usage edges attached, in two
// passes: declarations first, then the usages that reference them.
package extract

import (
	"fmt"
	"strings"

	"github.com/opencodeindex/astidx/pkg/errstats"
	"github.com/opencodeindex/astidx/pkg/model"
	"github.com/opencodeindex/astidx/pkg/parsing"
)

// Extract runs both passes over one file's raw symbols and returns the
// file-relative Definition tree (official_path does not yet carry the
// file's global-path prefix; the caller, the index writer, prepends
// it).
func Extract(lang string, symbols []parsing.RawSymbol, errs *errstats.Sink) []model.Definition {
	e := &extractor{
		lang:    lang,
		byID:    make(map[parsing.NodeID]*parsing.RawSymbol, len(symbols)),
		defByID: make(map[parsing.NodeID]*model.Definition),
		errs:    errs,
	}
	for i := range symbols {
		s := &symbols[i]
		e.byID[s.ID] = s
	}
	e.pass1(symbols)
	e.pass2(symbols)

	var out []model.Definition
	for _, s := range symbols {
		if model.IsUsageKind(s.SymbolType) {
			continue
		}
		if d, ok := e.defByID[s.ID]; ok {
			out = append(out, *d)
		}
	}
	return out
}

type extractor struct {
	lang    string
	byID    map[parsing.NodeID]*parsing.RawSymbol
	defByID map[parsing.NodeID]*model.Definition
	errs    *errstats.Sink
}

// isFunctionParent reports whether id names a FunctionDeclaration raw
// symbol, used to decide whether a VariableDefinition is a local.
func (e *extractor) isFunctionParent(id parsing.NodeID) bool {
	s, ok := e.byID[id]
	return ok && s.SymbolType == model.FunctionDeclaration
}

// ---- Pass 1: declarations ----------------------------------------------

func (e *extractor) pass1(symbols []parsing.RawSymbol) {
	for i := range symbols {
		s := &symbols[i]
		if model.IsUsageKind(s.SymbolType) {
			continue
		}
		if s.SymbolType == model.VariableDefinition && e.isFunctionParent(s.ParentID) {
			continue // local variable, not a module/class member
		}
		if s.Name == "" {
			e.errs.Add(s.FilePath, s.FullRange.Line1, errstats.NamelessDeclaration, "declaration with no name")
			continue
		}

		path := e.officialPath(s)
		def := &model.Definition{
			OfficialPath: path,
			SymbolType:   s.SymbolType,
			Cpath:        s.FilePath,
			DeclLine1:    s.DeclRange.Line1,
			DeclLine2:    s.DeclRange.Line2,
			BodyLine1:    s.FullRange.Line1,
			BodyLine2:    s.FullRange.Line2,
		}

		if s.SymbolType == model.StructDeclaration {
			def.ThisIsAClass = model.ClassTag(e.lang, s.Name)
			for _, base := range s.BaseTypes {
				if base == "" {
					e.errs.Add(s.FilePath, s.DeclRange.Line1, errstats.BaseClassUsageFailed,
						"unnamed base class on "+s.Name)
					continue
				}
				baseTag := model.ClassTag(e.lang, base)
				def.ThisClassDerivedFrom = append(def.ThisClassDerivedFrom, baseTag)
				def.Usages = append(def.Usages, model.Usage{
					TargetsForGuesswork: []string{"?::" + baseTag, base},
					DebugHint:           "n2p",
					ULine:               s.DeclRange.Line1,
				})
			}
		}

		e.defByID[s.ID] = def
	}
}

// officialPath walks parent links until a parent id is absent (the zero
// NodeID, or one that does not resolve to a symbol in this file), joining
// names root-first. A nameless ancestor falls back to its opaque id so
// the path never collides with a sibling of the same name.
func (e *extractor) officialPath(s *parsing.RawSymbol) []string {
	var rev []string
	cur := s
	seen := map[parsing.NodeID]bool{}
	for cur != nil {
		if seen[cur.ID] {
			break
		}
		seen[cur.ID] = true

		name := cur.Name
		if name == "" {
			name = fmt.Sprintf("$n%d", cur.ID)
		}
		rev = append(rev, name)

		if cur.ParentID == 0 {
			break
		}
		parent, ok := e.byID[cur.ParentID]
		if !ok {
			break
		}
		cur = parent
	}

	out := make([]string, len(rev))
	for i, n := range rev {
		out[i] = n
	}
	reverse(out)
	return out
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// ---- Pass 2: usages ------------------------------------------------------

func (e *extractor) pass2(symbols []parsing.RawSymbol) {
	for i := range symbols {
		s := &symbols[i]
		if !model.IsUsageKind(s.SymbolType) {
			continue
		}
		if s.Name == "" {
			e.errs.Add(s.FilePath, s.FullRange.Line1, errstats.NamelessUsage, "usage with no name")
			continue
		}

		owner := e.nearestDeclarationAncestor(s)
		if owner == nil {
			continue // no enclosing Definition to attach this usage to
		}

		var usage model.Usage
		var ok bool
		if s.CallerID != 0 {
			usage, ok = e.typeofUsage(s)
		} else {
			usage, ok = e.nameToUsage(s)
		}
		if !ok {
			continue // function argument, not an external reference
		}
		usage.ULine = s.FullRange.Line1
		owner.Usages = append(owner.Usages, usage)
	}
}

// nearestDeclarationAncestor finds the owning Definition by walking
// parent links until one resolves to an already-built Definition.
func (e *extractor) nearestDeclarationAncestor(s *parsing.RawSymbol) *model.Definition {
	cur := s
	seen := map[parsing.NodeID]bool{}
	for cur != nil {
		if seen[cur.ID] {
			return nil
		}
		seen[cur.ID] = true
		if d, ok := e.defByID[cur.ID]; ok {
			return d
		}
		if cur.ParentID == 0 {
			return nil
		}
		parent, ok := e.byID[cur.ParentID]
		if !ok {
			return nil
		}
		cur = parent
	}
	return nil
}

// scopeChain returns the raw-symbol ancestors of s, nearest first,
// stopping at the first top-level (absent-parent) node.
func (e *extractor) scopeChain(s *parsing.RawSymbol) []*parsing.RawSymbol {
	var chain []*parsing.RawSymbol
	cur := s
	seen := map[parsing.NodeID]bool{}
	for cur.ParentID != 0 {
		if seen[cur.ParentID] {
			break
		}
		parent, ok := e.byID[cur.ParentID]
		if !ok {
			break
		}
		seen[cur.ParentID] = true
		chain = append(chain, parent)
		cur = parent
	}
	return chain
}

// nameToUsage derives a usage edge for a bare name with no caller
// chain: walk the scope for a parameter match, collect per-enclosing-
// class guesses, then try the file's top level. The second return is
// false when the name turns out to be a function argument, which is not
// an external reference and produces no usage at all.
func (e *extractor) nameToUsage(s *parsing.RawSymbol) (model.Usage, bool) {
	chain := e.scopeChain(s)

	for _, anc := range chain {
		if anc.SymbolType == model.FunctionDeclaration {
			if paramIsFunctionArg(e, anc, s.Name) {
				return model.Usage{}, false
			}
		}
	}

	var targets []string
	for _, anc := range chain {
		if anc.SymbolType == model.StructDeclaration {
			targets = append(targets, "?::"+model.ClassTag(e.lang, anc.Name)+"::"+s.Name)
		}
	}

	var resolvedAs string
	if found := e.findTopLevelByName(s.Name); found != nil {
		resolvedAs = model.JoinPath(e.officialPath(found))
	}

	targets = append(targets, s.Name)

	hint := "n2p"
	if resolvedAs != "" {
		hint = "up"
	}
	return model.Usage{
		ResolvedAs:          joinIfLocal(resolvedAs),
		TargetsForGuesswork: targets,
		DebugHint:           hint,
	}, true
}

// joinIfLocal prefixes a same-file resolution with "file::" so the index
// writer can rewrite it with the file's global path.
func joinIfLocal(resolvedAs string) string {
	if resolvedAs == "" {
		return ""
	}
	return "file::" + resolvedAs
}

// paramIsFunctionArg reports whether name is one of fn's declared
// parameters. Body-local variables also hang off fn with the same
// symbol type, so the walker-set IsParam flag is what distinguishes a
// real parameter from a local.
func paramIsFunctionArg(e *extractor, fn *parsing.RawSymbol, name string) bool {
	for _, s := range e.byID {
		if s.ParentID == fn.ID && s.IsParam && s.Name == name {
			return true
		}
	}
	return false
}

func (e *extractor) findTopLevelByName(name string) *parsing.RawSymbol {
	for _, s := range e.byID {
		if s.ParentID != 0 {
			continue
		}
		if model.IsUsageKind(s.SymbolType) {
			continue
		}
		if s.Name == name {
			return s
		}
	}
	return nil
}

// typeofUsage derives a usage edge for a chained access like a.b():
// the caller's declared type decides where the guess points. The second
// return is false when the fallback name lookup decides there is no
// usage to record.
func (e *extractor) typeofUsage(s *parsing.RawSymbol) (model.Usage, bool) {
	caller, ok := e.byID[s.CallerID]
	if !ok {
		return e.nameToUsage(s)
	}

	typeChain := e.typeof(caller)
	if len(typeChain) == 0 {
		u, ok := e.nameToUsage(s)
		if !ok {
			return model.Usage{}, false
		}
		u.DebugHint = caller.Name
		return u, true
	}

	if typeChain[0] == "file" {
		resolved := strings.Join(typeChain[1:], "::")
		if resolved != "" {
			resolved = resolved + "::" + s.Name
		} else {
			resolved = s.Name
		}
		return model.Usage{
			ResolvedAs:          joinIfLocal(resolved),
			TargetsForGuesswork: []string{resolved},
			DebugHint:           caller.Name,
		}, true
	}

	guess := strings.Join(typeChain, "::") + "::" + s.Name
	return model.Usage{
		TargetsForGuesswork: []string{guess},
		DebugHint:           caller.Name,
	}, true
}

// typeof walks the caller's scope chain for a VariableDefinition or
// function-argument declaration named like the caller, and returns
// ["?", "<lang>🔎<Type>"] for its first declared type. An empty result
// means the type could not be determined.
func (e *extractor) typeof(caller *parsing.RawSymbol) []string {
	decl := e.findDeclInScope(caller)
	if decl == nil {
		return nil
	}
	if len(decl.Types) == 0 || decl.Types[0] == "" {
		kind := errstats.NamelessTypeForVar
		if decl.IsParam {
			kind = errstats.NamelessTypeForArg
		}
		e.errs.Add(decl.FilePath, decl.FullRange.Line1, kind, "no declared type for "+decl.Name)
		return nil
	}
	return []string{"?", model.ClassTag(e.lang, decl.Types[0])}
}

// findDeclInScope finds the VariableDefinition (or parameter) visible to
// caller's scope whose name matches caller's name.
func (e *extractor) findDeclInScope(caller *parsing.RawSymbol) *parsing.RawSymbol {
	chain := append([]*parsing.RawSymbol{caller}, e.scopeChain(caller)...)
	for _, anc := range chain {
		for _, s := range e.byID {
			if s.SymbolType != model.VariableDefinition {
				continue
			}
			if s.Name != caller.Name {
				continue
			}
			if s.ParentID == anc.ID || s.ID == anc.ID {
				return s
			}
		}
	}
	return nil
}
