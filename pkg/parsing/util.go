package parsing

import sitter "github.com/smacker/go-tree-sitter"

// idAlloc hands out sequential, process-local node IDs for one Walk call.
type idAlloc struct{ next NodeID }

func (a *idAlloc) next1() NodeID {
	a.next++
	return a.next
}

// text slices the original source by a node's byte span (go-tree-sitter
// nodes do not carry their own text).
func text(content []byte, n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(content[n.StartByte():n.EndByte()])
}

func fullRange(n *sitter.Node) LineRange {
	return LineRange{
		Line1: int(n.StartPoint().Row) + 1,
		Line2: int(n.EndPoint().Row) + 1,
	}
}

// childByType returns the first direct child whose Type() matches typ.
func childByType(n *sitter.Node, typ string) *sitter.Node {
	if n == nil {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == typ {
			return c
		}
	}
	return nil
}

// countParseErrors counts the ERROR nodes under n. Nothing in the module
// calls it; tree-sitter is error-tolerant, so parsing never stops on them.
func countParseErrors(n *sitter.Node) int {
	if n == nil {
		return 0
	}
	count := 0
	if n.Type() == "ERROR" {
		count++
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		count += countParseErrors(n.Child(i))
	}
	return count
}
