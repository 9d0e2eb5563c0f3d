package parsing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencodeindex/astidx/pkg/model"
)

func symbolNamed(t *testing.T, syms []RawSymbol, name string, kind model.SymbolType) RawSymbol {
	t.Helper()
	for _, s := range syms {
		if s.Name == name && s.SymbolType == kind {
			return s
		}
	}
	t.Fatalf("no %s symbol named %q in %+v", kind, name, syms)
	return RawSymbol{}
}

func TestParseUnknownExtensionFails(t *testing.T) {
	p := NewParser()
	_, err := p.Parse("thing.rb", []byte("puts 1"))
	require.ErrorIs(t, err, ErrNoParser)
}

func TestParseGoFunctionAndCall(t *testing.T) {
	src := `package main

func helper() {}

func main() {
	helper()
}
`
	p := NewParser()
	res, err := p.Parse("main.go", []byte(src))
	require.NoError(t, err)
	require.Equal(t, "go", res.Lang)

	symbolNamed(t, res.Symbols, "helper", model.FunctionDeclaration)
	mainFn := symbolNamed(t, res.Symbols, "main", model.FunctionDeclaration)
	call := symbolNamed(t, res.Symbols, "helper", model.FunctionCall)
	require.Equal(t, mainFn.ID, call.ParentID)
}

func TestParseGoStructEmbedding(t *testing.T) {
	src := `package main

type Animal struct {
	Name string
}

type Dog struct {
	Animal
	Breed string
}
`
	p := NewParser()
	res, err := p.Parse("animals.go", []byte(src))
	require.NoError(t, err)

	dog := symbolNamed(t, res.Symbols, "Dog", model.StructDeclaration)
	require.Contains(t, dog.BaseTypes, "Animal")
}

func TestParsePythonClassInheritance(t *testing.T) {
	src := `class Animal:
    def speak(self):
        pass

class Dog(Animal):
    def speak(self):
        print("woof")
`
	p := NewParser()
	res, err := p.Parse("animals.py", []byte(src))
	require.NoError(t, err)
	require.Equal(t, "python", res.Lang)

	dog := symbolNamed(t, res.Symbols, "Dog", model.StructDeclaration)
	require.Contains(t, dog.BaseTypes, "Animal")
	symbolNamed(t, res.Symbols, "speak", model.FunctionDeclaration)
	symbolNamed(t, res.Symbols, "print", model.FunctionCall)
}

func TestParseCppClassInheritanceAndCall(t *testing.T) {
	src := `class Animal {
public:
    void speak();
};

class Dog : public Animal {
public:
    void speak() {
        bark();
    }
};
`
	p := NewParser()
	res, err := p.Parse("animals.cpp", []byte(src))
	require.NoError(t, err)
	require.Equal(t, "cpp", res.Lang)

	dog := symbolNamed(t, res.Symbols, "Dog", model.StructDeclaration)
	require.Contains(t, dog.BaseTypes, "Animal")
	symbolNamed(t, res.Symbols, "bark", model.FunctionCall)
}

func TestParseCCallWithNoLocalDeclaration(t *testing.T) {
	src := `int main() {
    printf("hi");
    return 0;
}
`
	p := NewParser()
	res, err := p.Parse("main.c", []byte(src))
	require.NoError(t, err)
	require.Equal(t, "c", res.Lang)

	symbolNamed(t, res.Symbols, "printf", model.FunctionCall)
	for _, s := range res.Symbols {
		require.NotEqual(t, "printf", func() string {
			if s.SymbolType == model.FunctionDeclaration {
				return s.Name
			}
			return ""
		}())
	}
}
