package parsing

import (
	"context"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/opencodeindex/astidx/pkg/model"
)

// pythonWalker walks Python source with tree-sitter
// (class_definition/function_definition/call, with the "name",
// "parameters", "superclasses", "function" and "attribute" fields),
// recording base classes and usage caller chains along the way.
type pythonWalker struct {
	pool sync.Pool
}

func newPythonWalker() *pythonWalker {
	w := &pythonWalker{}
	w.pool.New = func() any {
		p := sitter.NewParser()
		p.SetLanguage(python.GetLanguage())
		return p
	}
	return w
}

func (w *pythonWalker) Walk(path string, content []byte) ([]RawSymbol, error) {
	pObj := w.pool.Get()
	parser := pObj.(*sitter.Parser)
	defer w.pool.Put(parser)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	ctx := &pyCtx{content: content, path: path, ids: &idAlloc{}}
	ctx.walk(tree.RootNode(), 0)
	return ctx.out, nil
}

type pyCtx struct {
	content []byte
	path    string
	ids     *idAlloc
	out     []RawSymbol
}

func (c *pyCtx) walk(n *sitter.Node, parent NodeID) {
	if n == nil {
		return
	}

	switch n.Type() {
	case "class_definition":
		c.class(n, parent)
		return
	case "function_definition":
		c.function(n, parent)
		return
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		c.walk(n.Child(i), parent)
	}
}

func (c *pyCtx) class(n *sitter.Node, parent NodeID) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	id := c.ids.next1()
	c.out = append(c.out, RawSymbol{
		ID:         id,
		ParentID:   parent,
		SymbolType: model.StructDeclaration,
		Name:       text(c.content, nameNode),
		Lang:       "python",
		FilePath:   c.path,
		FullRange:  fullRange(n),
		DeclRange:  fullRange(nameNode),
		DefRange:   fullRange(n),
		BaseTypes:  superclassNames(n, c.content),
	})

	if body := n.ChildByFieldName("body"); body != nil {
		c.walk(body, id)
	}
}

// superclassNames reads the "superclasses" argument_list of a
// class_definition, e.g. "class Dog(Animal, Named):" -> ["Animal", "Named"].
func superclassNames(n *sitter.Node, content []byte) []string {
	sup := n.ChildByFieldName("superclasses")
	if sup == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(sup.ChildCount()); i++ {
		arg := sup.Child(i)
		switch arg.Type() {
		case "identifier":
			out = append(out, text(content, arg))
		case "attribute":
			if attr := arg.ChildByFieldName("attribute"); attr != nil {
				out = append(out, text(content, attr))
			}
		}
	}
	return out
}

func (c *pyCtx) function(n *sitter.Node, parent NodeID) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	id := c.ids.next1()
	c.out = append(c.out, RawSymbol{
		ID:         id,
		ParentID:   parent,
		SymbolType: model.FunctionDeclaration,
		Name:       text(c.content, nameNode),
		Lang:       "python",
		FilePath:   c.path,
		FullRange:  fullRange(n),
		DeclRange:  fullRange(nameNode),
		DefRange:   fullRange(n),
	})

	if params := n.ChildByFieldName("parameters"); params != nil {
		c.params(params, id)
	}
	if body := n.ChildByFieldName("body"); body != nil {
		c.body(body, id)
	}
}

func (c *pyCtx) params(paramsNode *sitter.Node, fnID NodeID) {
	for i := 0; i < int(paramsNode.ChildCount()); i++ {
		p := paramsNode.Child(i)
		var nameNode, typeNode *sitter.Node
		switch p.Type() {
		case "identifier":
			nameNode = p
		case "typed_parameter":
			typeNode = p.ChildByFieldName("type")
			for j := 0; j < int(p.ChildCount()); j++ {
				if p.Child(j).Type() == "identifier" {
					nameNode = p.Child(j)
					break
				}
			}
		case "default_parameter", "typed_default_parameter":
			nameNode = p.ChildByFieldName("name")
			typeNode = p.ChildByFieldName("type")
		default:
			continue
		}
		if nameNode == nil || text(c.content, nameNode) == "self" {
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
			Lang:       "python",
			FilePath:   c.path,
			FullRange:  fullRange(p),
			DeclRange:  fullRange(p),
			DefRange:   fullRange(p),
			Types:      types,
			IsParam:    true,
		})
	}
}

func (c *pyCtx) body(n *sitter.Node, ownerID NodeID) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "class_definition", "function_definition":
		c.walk(n, ownerID)
		return
	case "call":
		c.call(n, ownerID)
	case "assignment":
		c.assignment(n, ownerID)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c.body(n.Child(i), ownerID)
	}
}

func (c *pyCtx) call(n *sitter.Node, ownerID NodeID) {
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
			Lang:       "python",
			FilePath:   c.path,
			FullRange:  fullRange(n),
			DeclRange:  fullRange(n),
			DefRange:   fullRange(n),
		})
	case "attribute":
		attr := fn.ChildByFieldName("attribute")
		obj := fn.ChildByFieldName("object")
		if attr == nil {
			return
		}
		var callerID NodeID
		if obj != nil && obj.Type() == "identifier" {
			callerID = c.ids.next1()
			c.out = append(c.out, RawSymbol{
				ID:         callerID,
				ParentID:   ownerID,
				SymbolType: model.VariableUsage,
				Name:       text(c.content, obj),
				Lang:       "python",
				FilePath:   c.path,
				FullRange:  fullRange(obj),
				DeclRange:  fullRange(obj),
				DefRange:   fullRange(obj),
			})
		}
		id := c.ids.next1()
		c.out = append(c.out, RawSymbol{
			ID:         id,
			ParentID:   ownerID,
			SymbolType: model.FunctionCall,
			Name:       text(c.content, attr),
			Lang:       "python",
			FilePath:   c.path,
			FullRange:  fullRange(n),
			DeclRange:  fullRange(n),
			DefRange:   fullRange(n),
			CallerID:   callerID,
		})
	}
}

func (c *pyCtx) assignment(n *sitter.Node, ownerID NodeID) {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if left == nil || left.Type() != "identifier" {
		return
	}
	var typeName string
	if right != nil && right.Type() == "call" {
		if fn := right.ChildByFieldName("function"); fn != nil {
			switch fn.Type() {
			case "identifier":
				typeName = text(c.content, fn)
			case "attribute":
				if a := fn.ChildByFieldName("attribute"); a != nil {
					typeName = text(c.content, a)
				}
			}
		}
	}
	id := c.ids.next1()
	c.out = append(c.out, RawSymbol{
		ID:         id,
		ParentID:   ownerID,
		SymbolType: model.VariableDefinition,
		Name:       text(c.content, left),
		Lang:       "python",
		FilePath:   c.path,
		FullRange:  fullRange(n),
		DeclRange:  fullRange(n),
		DefRange:   fullRange(n),
		Types:      nonEmpty(typeName),
	})
}
