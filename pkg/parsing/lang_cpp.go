package parsing

import (
	"context"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"

	"github.com/opencodeindex/astidx/pkg/model"
)

// cFamilyWalker handles both C and C++ with the same grammar shapes
// (function_definition/declarator/parameters, call_expression,
// struct_specifier/class_specifier with an optional base_class_clause).
// C++-only constructs (class_specifier, base_class_clause) are simply
// absent from C sources and are handled defensively.
type cFamilyWalker struct {
	lang string
	pool sync.Pool
}

func newCppWalker() *cFamilyWalker {
	w := &cFamilyWalker{lang: "cpp"}
	w.pool.New = func() any {
		p := sitter.NewParser()
		p.SetLanguage(cpp.GetLanguage())
		return p
	}
	return w
}

func newCWalker() *cFamilyWalker {
	w := &cFamilyWalker{lang: "c"}
	w.pool.New = func() any {
		p := sitter.NewParser()
		p.SetLanguage(c.GetLanguage())
		return p
	}
	return w
}

func (w *cFamilyWalker) Walk(path string, content []byte) ([]RawSymbol, error) {
	pObj := w.pool.Get()
	parser := pObj.(*sitter.Parser)
	defer w.pool.Put(parser)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	ctx := &cxxCtx{content: content, path: path, lang: w.lang, ids: &idAlloc{}}
	ctx.walk(tree.RootNode(), 0)
	return ctx.out, nil
}

type cxxCtx struct {
	content []byte
	path    string
	lang    string
	ids     *idAlloc
	out     []RawSymbol
}

func (c *cxxCtx) walk(n *sitter.Node, parent NodeID) {
	if n == nil {
		return
	}

	switch n.Type() {
	case "function_definition":
		c.function(n, parent)
		return
	case "class_specifier", "struct_specifier":
		c.classOrStruct(n, parent)
		return
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		c.walk(n.Child(i), parent)
	}
}

// funcDeclaratorName drills through pointer/reference/function declarator
// wrappers to find the innermost identifier, and returns both the name
// node and the parameter_list node it carries.
func funcDeclaratorName(n *sitter.Node) (name *sitter.Node, params *sitter.Node) {
	cur := n
	for cur != nil {
		switch cur.Type() {
		case "function_declarator":
			params = cur.ChildByFieldName("parameters")
			cur = cur.ChildByFieldName("declarator")
		case "pointer_declarator", "reference_declarator":
			cur = cur.ChildByFieldName("declarator")
		case "qualified_identifier":
			if n2 := cur.ChildByFieldName("name"); n2 != nil {
				cur = n2
			} else {
				return cur, params
			}
		case "identifier", "field_identifier", "destructor_name", "operator_name":
			return cur, params
		default:
			return cur, params
		}
	}
	return name, params
}

func (c *cxxCtx) function(n *sitter.Node, parent NodeID) {
	declarator := n.ChildByFieldName("declarator")
	if declarator == nil {
		return
	}
	nameNode, paramsNode := funcDeclaratorName(declarator)
	if nameNode == nil {
		return
	}

	id := c.ids.next1()
	sym := RawSymbol{
		ID:         id,
		ParentID:   parent,
		SymbolType: model.FunctionDeclaration,
		Name:       text(c.content, nameNode),
		Lang:       c.lang,
		FilePath:   c.path,
		FullRange:  fullRange(n),
		DeclRange:  fullRange(nameNode),
	}
	if body := n.ChildByFieldName("body"); body != nil {
		sym.DefRange = fullRange(body)
		c.out = append(c.out, sym)
		if paramsNode != nil {
			c.params(paramsNode, id)
		}
		c.body(body, id)
		return
	}
	sym.DefRange = sym.FullRange
	c.out = append(c.out, sym)
	if paramsNode != nil {
		c.params(paramsNode, id)
	}
}

func (c *cxxCtx) params(paramsNode *sitter.Node, fnID NodeID) {
	for i := 0; i < int(paramsNode.ChildCount()); i++ {
		p := paramsNode.Child(i)
		if p.Type() != "parameter_declaration" {
			continue
		}
		typeNode := p.ChildByFieldName("type")
		declNode := p.ChildByFieldName("declarator")
		var nameNode *sitter.Node
		if declNode != nil {
			nameNode, _ = funcDeclaratorName(declNode)
		}
		if nameNode == nil {
			continue
		}
		var types []string
		if typeNode != nil {
			types = []string{text(c.content, typeNode)}
		}
		id := c.ids.next1()
		c.out = append(c.out, RawSymbol{
			ID:         id,
			ParentID:   fnID,
			SymbolType: model.VariableDefinition,
			Name:       text(c.content, nameNode),
			Lang:       c.lang,
			FilePath:   c.path,
			FullRange:  fullRange(p),
			DeclRange:  fullRange(p),
			DefRange:   fullRange(p),
			Types:      types,
			IsParam:    true,
		})
	}
}

func (c *cxxCtx) body(n *sitter.Node, ownerID NodeID) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "function_definition":
		return
	case "call_expression":
		c.call(n, ownerID)
	case "declaration":
		c.declaration(n, ownerID)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c.body(n.Child(i), ownerID)
	}
}

func (c *cxxCtx) call(n *sitter.Node, ownerID NodeID) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}
	switch fn.Type() {
	case "identifier", "qualified_identifier":
		nameNode, _ := funcDeclaratorName(fn)
		if nameNode == nil {
			nameNode = fn
		}
		id := c.ids.next1()
		c.out = append(c.out, RawSymbol{
			ID:         id,
			ParentID:   ownerID,
			SymbolType: model.FunctionCall,
			Name:       text(c.content, nameNode),
			Lang:       c.lang,
			FilePath:   c.path,
			FullRange:  fullRange(n),
			DeclRange:  fullRange(n),
			DefRange:   fullRange(n),
		})
	case "field_expression":
		field := fn.ChildByFieldName("field")
		arg := fn.ChildByFieldName("argument")
		if field == nil {
			return
		}
		var callerID NodeID
		if arg != nil && arg.Type() == "identifier" {
			callerID = c.ids.next1()
			c.out = append(c.out, RawSymbol{
				ID:         callerID,
				ParentID:   ownerID,
				SymbolType: model.VariableUsage,
				Name:       text(c.content, arg),
				Lang:       c.lang,
				FilePath:   c.path,
				FullRange:  fullRange(arg),
				DeclRange:  fullRange(arg),
				DefRange:   fullRange(arg),
			})
		}
		id := c.ids.next1()
		c.out = append(c.out, RawSymbol{
			ID:         id,
			ParentID:   ownerID,
			SymbolType: model.FunctionCall,
			Name:       text(c.content, field),
			Lang:       c.lang,
			FilePath:   c.path,
			FullRange:  fullRange(n),
			DeclRange:  fullRange(n),
			DefRange:   fullRange(n),
			CallerID:   callerID,
		})
	}
}

func (c *cxxCtx) declaration(n *sitter.Node, ownerID NodeID) {
	typeNode := n.ChildByFieldName("type")
	typeName := ""
	if typeNode != nil {
		typeName = text(c.content, typeNode)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		d := n.Child(i)
		nameNode, _ := funcDeclaratorName(d)
		if nameNode == nil || nameNode.Type() != "identifier" {
			continue
		}
		id := c.ids.next1()
		c.out = append(c.out, RawSymbol{
			ID:         id,
			ParentID:   ownerID,
			SymbolType: model.VariableDefinition,
			Name:       text(c.content, nameNode),
			Lang:       c.lang,
			FilePath:   c.path,
			FullRange:  fullRange(n),
			DeclRange:  fullRange(n),
			DefRange:   fullRange(n),
			Types:      nonEmpty(typeName),
		})
	}
}

func (c *cxxCtx) classOrStruct(n *sitter.Node, parent NodeID) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		// Anonymous struct/class: still walk its body for nested decls but
		// emit no symbol of its own (nothing to key it by).
		if body := n.ChildByFieldName("body"); body != nil {
			c.walk(body, parent)
		}
		return
	}

	id := c.ids.next1()
	c.out = append(c.out, RawSymbol{
		ID:         id,
		ParentID:   parent,
		SymbolType: model.StructDeclaration,
		Name:       text(c.content, nameNode),
		Lang:       c.lang,
		FilePath:   c.path,
		FullRange:  fullRange(n),
		DeclRange:  fullRange(nameNode),
		DefRange:   fullRange(n),
		BaseTypes:  baseClassNames(n, c.content),
	})

	if body := n.ChildByFieldName("body"); body != nil {
		c.classBody(body, id)
	}
}

// baseClassNames reads a class_specifier's base_class_clause child (C++
// only; absent entirely from struct/class nodes in plain C).
func baseClassNames(n *sitter.Node, content []byte) []string {
	base := childByType(n, "base_class_clause")
	if base == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(base.ChildCount()); i++ {
		ch := base.Child(i)
		switch ch.Type() {
		case "type_identifier":
			out = append(out, text(content, ch))
		case "qualified_identifier":
			if nm := ch.ChildByFieldName("name"); nm != nil {
				out = append(out, text(content, nm))
			}
		}
	}
	return out
}

func (c *cxxCtx) classBody(n *sitter.Node, ownerID NodeID) {
	for i := 0; i < int(n.ChildCount()); i++ {
		member := n.Child(i)
		switch member.Type() {
		case "field_declaration":
			c.fieldDeclaration(member, ownerID)
		case "function_definition":
			c.function(member, ownerID)
		case "declaration":
			// Method prototypes without a body declare a signature only;
			// skipped since there is no FunctionDeclaration without a body
			// in this model.
		}
	}
}

func (c *cxxCtx) fieldDeclaration(n *sitter.Node, ownerID NodeID) {
	typeNode := n.ChildByFieldName("type")
	typeName := ""
	if typeNode != nil {
		typeName = text(c.content, typeNode)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		d := n.Child(i)
		nameNode, params := funcDeclaratorName(d)
		if nameNode == nil {
			continue
		}
		if params != nil {
			// function_declarator inside a field_declaration: a method
			// prototype, not a field.
			continue
		}
		if nameNode.Type() != "field_identifier" {
			continue
		}
		id := c.ids.next1()
		c.out = append(c.out, RawSymbol{
			ID:         id,
			ParentID:   ownerID,
			SymbolType: model.ClassFieldDeclaration,
			Name:       text(c.content, nameNode),
			Lang:       c.lang,
			FilePath:   c.path,
			FullRange:  fullRange(n),
			DeclRange:  fullRange(n),
			DefRange:   fullRange(n),
			Types:      nonEmpty(typeName),
		})
	}
}
