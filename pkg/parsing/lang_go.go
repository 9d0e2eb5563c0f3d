package parsing

import (
	"context"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/opencodeindex/astidx/pkg/model"
	"github.com/opencodeindex/astidx/pkg/sigparse"
)

// goWalker walks Go source with tree-sitter (function_declaration,
// method_declaration, type_declaration, call_expression, and their
// "name"/"parameters"/"result"/"receiver"/"body"/"function" fields).
type goWalker struct {
	pool sync.Pool
}

func newGoWalker() *goWalker {
	w := &goWalker{}
	w.pool.New = func() any {
		p := sitter.NewParser()
		p.SetLanguage(golang.GetLanguage())
		return p
	}
	return w
}

func (w *goWalker) Walk(path string, content []byte) ([]RawSymbol, error) {
	pObj := w.pool.Get()
	parser := pObj.(*sitter.Parser)
	defer w.pool.Put(parser)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	ctx := &goCtx{
		content: content,
		path:    path,
		ids:     &idAlloc{},
	}
	ctx.walk(tree.RootNode(), 0)
	reparentMethods(ctx.out)
	return ctx.out, nil
}

// reparentMethods attaches each method declaration to the struct its
// receiver names, so "func (a Animal) Age()" files under Animal::Age the
// way a class method would. Go declares methods outside the type, and
// the type may appear after the method, so this runs as a fixup over the
// finished symbol list.
func reparentMethods(symbols []RawSymbol) {
	structIDs := make(map[string]NodeID)
	for _, s := range symbols {
		if s.SymbolType == model.StructDeclaration && s.ParentID == 0 {
			structIDs[s.Name] = s.ID
		}
	}
	for i := range symbols {
		s := &symbols[i]
		if s.SymbolType != model.FunctionDeclaration || s.ParentID != 0 || len(s.Types) == 0 {
			continue
		}
		if id, ok := structIDs[s.Types[0]]; ok {
			s.ParentID = id
		}
	}
}

type goCtx struct {
	content []byte
	path    string
	ids     *idAlloc
	out     []RawSymbol
}

func (c *goCtx) walk(n *sitter.Node, parent NodeID) {
	if n == nil {
		return
	}

	switch n.Type() {
	case "function_declaration":
		c.function(n, parent, nil)
		return
	case "method_declaration":
		c.function(n, parent, n.ChildByFieldName("receiver"))
		return
	case "type_declaration":
		c.typeDecl(n, parent)
		return
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		c.walk(n.Child(i), parent)
	}
}

func (c *goCtx) function(n *sitter.Node, parent NodeID, receiver *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	id := c.ids.next1()
	name := text(c.content, nameNode)

	var types []string
	if receiver != nil {
		if rt := receiverTypeName(receiver, c.content); rt != "" {
			types = append(types, rt)
		}
	}

	sym := RawSymbol{
		ID:         id,
		ParentID:   parent,
		SymbolType: model.FunctionDeclaration,
		Name:       name,
		Lang:       "go",
		FilePath:   c.path,
		FullRange:  fullRange(n),
		DeclRange:  declRangeUpTo(n, nameNode),
		Types:      types,
	}
	if body := n.ChildByFieldName("body"); body != nil {
		sym.DefRange = fullRange(body)
	} else {
		sym.DefRange = sym.FullRange
	}
	c.out = append(c.out, sym)

	if params := n.ChildByFieldName("parameters"); params != nil {
		sig := "func " + name + text(c.content, params)
		c.params(params, id, sigparseTypesByName(sig))
	}
	if body := n.ChildByFieldName("body"); body != nil {
		c.body(body, id)
	}
}

// sigparseTypesByName runs the shared Go signature parser over a
// synthesized "func Name(params)" string and indexes the result by
// parameter name, so struct-field-level type lookups (ChildByFieldName)
// and the signature grammar agree on normalization (pointers, slices,
// qualified packages all reduced to a bare type name).
func sigparseTypesByName(sig string) map[string]string {
	out := make(map[string]string)
	for _, p := range sigparse.ParseGoParams(sig) {
		out[p.Name] = p.Type
	}
	return out
}

// receiverTypeName extracts "T" from "(r *T)" or "(r T)".
func receiverTypeName(receiver *sitter.Node, content []byte) string {
	for i := 0; i < int(receiver.ChildCount()); i++ {
		p := receiver.Child(i)
		if p.Type() != "parameter_declaration" {
			continue
		}
		t := p.ChildByFieldName("type")
		if t == nil {
			continue
		}
		return strings.TrimPrefix(text(content, t), "*")
	}
	return ""
}

// params walks a function's parameter list, emitting one
// ClassFieldDeclaration-like VariableDefinition per named parameter so
// Case B (typeof) resolution has argument types to draw on.
func (c *goCtx) params(paramsNode *sitter.Node, fnID NodeID, typesByName map[string]string) {
	for i := 0; i < int(paramsNode.ChildCount()); i++ {
		p := paramsNode.Child(i)
		if p.Type() != "parameter_declaration" {
			continue
		}
		typeNode := p.ChildByFieldName("type")
		typeName := ""
		if typeNode != nil {
			typeName = strings.TrimPrefix(text(c.content, typeNode), "*")
			if idx := strings.LastIndex(typeName, "."); idx >= 0 {
				typeName = typeName[idx+1:]
			}
		}
		for j := 0; j < int(p.ChildCount()); j++ {
			nameNode := p.Child(j)
			if nameNode.Type() != "identifier" {
				continue
			}
			pname := text(c.content, nameNode)
			if t, ok := typesByName[pname]; ok && t != "" && t != "func" {
				typeName = t
			}
			id := c.ids.next1()
			c.out = append(c.out, RawSymbol{
				ID:         id,
				ParentID:   fnID,
				SymbolType: model.VariableDefinition,
				Name:       pname,
				Lang:       "go",
				FilePath:   c.path,
				FullRange:  fullRange(p),
				DeclRange:  fullRange(p),
				DefRange:   fullRange(p),
				Types:      nonEmpty(typeName),
				IsParam:    true,
			})
		}
	}
}

func (c *goCtx) body(n *sitter.Node, ownerID NodeID) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "call_expression":
		c.call(n, ownerID)
	case "short_var_declaration":
		c.shortVarDecl(n, ownerID)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c.body(n.Child(i), ownerID)
	}
}

func (c *goCtx) call(n *sitter.Node, ownerID NodeID) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}
	switch fn.Type() {
	case "identifier":
		id := c.ids.next1()
		c.out = append(c.out, RawSymbol{
			ID:         id,
			ParentID:   ownerID,
			SymbolType: model.FunctionCall,
			Name:       text(c.content, fn),
			Lang:       "go",
			FilePath:   c.path,
			FullRange:  fullRange(n),
			DeclRange:  fullRange(n),
			DefRange:   fullRange(n),
		})
	case "selector_expression":
		field := fn.ChildByFieldName("field")
		operand := fn.ChildByFieldName("operand")
		if field == nil {
			return
		}
		var callerID NodeID
		if operand != nil && operand.Type() == "identifier" {
			callerID = c.ids.next1()
			c.out = append(c.out, RawSymbol{
				ID:         callerID,
				ParentID:   ownerID,
				SymbolType: model.VariableUsage,
				Name:       text(c.content, operand),
				Lang:       "go",
				FilePath:   c.path,
				FullRange:  fullRange(operand),
				DeclRange:  fullRange(operand),
				DefRange:   fullRange(operand),
			})
		}
		id := c.ids.next1()
		c.out = append(c.out, RawSymbol{
			ID:         id,
			ParentID:   ownerID,
			SymbolType: model.FunctionCall,
			Name:       text(c.content, field),
			Lang:       "go",
			FilePath:   c.path,
			FullRange:  fullRange(n),
			DeclRange:  fullRange(n),
			DefRange:   fullRange(n),
			CallerID:   callerID,
		})
	}
}

func (c *goCtx) shortVarDecl(n *sitter.Node, ownerID NodeID) {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if left == nil {
		return
	}
	rhsType := ""
	if right != nil && right.ChildCount() > 0 {
		if call := firstCall(right); call != nil {
			if fn := call.ChildByFieldName("function"); fn != nil {
				rhsType = calleeSimpleName(fn, c.content)
			}
		}
	}
	for i := 0; i < int(left.ChildCount()); i++ {
		nameNode := left.Child(i)
		if nameNode.Type() != "identifier" {
			continue
		}
		id := c.ids.next1()
		c.out = append(c.out, RawSymbol{
			ID:         id,
			ParentID:   ownerID,
			SymbolType: model.VariableDefinition,
			Name:       text(c.content, nameNode),
			Lang:       "go",
			FilePath:   c.path,
			FullRange:  fullRange(n),
			DeclRange:  fullRange(n),
			DefRange:   fullRange(n),
			Types:      nonEmpty(rhsType),
		})
	}
}

func firstCall(n *sitter.Node) *sitter.Node {
	if n.Type() == "call_expression" {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if r := firstCall(n.Child(i)); r != nil {
			return r
		}
	}
	return nil
}

func calleeSimpleName(fn *sitter.Node, content []byte) string {
	switch fn.Type() {
	case "identifier":
		return text(content, fn)
	case "selector_expression":
		if f := fn.ChildByFieldName("field"); f != nil {
			return text(content, f)
		}
	}
	return ""
}

func (c *goCtx) typeDecl(n *sitter.Node, parent NodeID) {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "type_spec":
			c.typeSpec(child, parent)
		case "type_spec_list":
			for j := 0; j < int(child.ChildCount()); j++ {
				if spec := child.Child(j); spec.Type() == "type_spec" {
					c.typeSpec(spec, parent)
				}
			}
		}
	}
}

func (c *goCtx) typeSpec(n *sitter.Node, parent NodeID) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := text(c.content, nameNode)

	typeNode := n.ChildByFieldName("type")
	symType := model.TypeAlias
	var baseTypes []string
	if typeNode != nil && typeNode.Type() == "struct_type" {
		symType = model.StructDeclaration
		baseTypes = embeddedFieldTypes(typeNode, c.content)
	} else if typeNode != nil && typeNode.Type() == "interface_type" {
		symType = model.StructDeclaration
	}

	id := c.ids.next1()
	c.out = append(c.out, RawSymbol{
		ID:         id,
		ParentID:   parent,
		SymbolType: symType,
		Name:       name,
		Lang:       "go",
		FilePath:   c.path,
		FullRange:  fullRange(n),
		DeclRange:  fullRange(nameNode),
		DefRange:   fullRange(n),
		BaseTypes:  baseTypes,
	})

	if symType == model.StructDeclaration && typeNode.Type() == "struct_type" {
		c.structFields(typeNode, id)
	}
}

// embeddedFieldTypes returns the type names of embedded (anonymous)
// struct fields, Go's closest analogue to inheritance.
func embeddedFieldTypes(structNode *sitter.Node, content []byte) []string {
	fl := childByType(structNode, "field_declaration_list")
	if fl == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(fl.ChildCount()); i++ {
		fd := fl.Child(i)
		if fd.Type() != "field_declaration" {
			continue
		}
		if fd.ChildByFieldName("name") != nil {
			continue
		}
		t := fd.ChildByFieldName("type")
		if t == nil {
			continue
		}
		name := strings.TrimPrefix(text(content, t), "*")
		out = append(out, name)
	}
	return out
}

func (c *goCtx) structFields(structNode *sitter.Node, ownerID NodeID) {
	fl := childByType(structNode, "field_declaration_list")
	if fl == nil {
		return
	}
	for i := 0; i < int(fl.ChildCount()); i++ {
		fd := fl.Child(i)
		if fd.Type() != "field_declaration" {
			continue
		}
		nameNode := fd.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		typeNode := fd.ChildByFieldName("type")
		typeName := ""
		if typeNode != nil {
			typeName = strings.TrimPrefix(text(c.content, typeNode), "*")
		}
		id := c.ids.next1()
		c.out = append(c.out, RawSymbol{
			ID:         id,
			ParentID:   ownerID,
			SymbolType: model.ClassFieldDeclaration,
			Name:       text(c.content, nameNode),
			Lang:       "go",
			FilePath:   c.path,
			FullRange:  fullRange(fd),
			DeclRange:  fullRange(fd),
			DefRange:   fullRange(fd),
			Types:      nonEmpty(typeName),
		})
	}
}

func declRangeUpTo(n, nameNode *sitter.Node) LineRange {
	if nameNode == nil {
		return fullRange(n)
	}
	return LineRange{
		Line1: int(n.StartPoint().Row) + 1,
		Line2: int(nameNode.EndPoint().Row) + 1,
	}
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
