package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencodeindex/astidx/pkg/errstats"
	"github.com/opencodeindex/astidx/pkg/model"
	"github.com/opencodeindex/astidx/pkg/parsing"
)

func extractFile(t *testing.T, cpath, src string) ([]model.Definition, *errstats.Sink) {
	t.Helper()
	p := parsing.NewParser()
	res, err := p.Parse(cpath, []byte(src))
	require.NoError(t, err)
	sink := errstats.New()
	return Extract(res.Lang, res.Symbols, sink), sink
}

func findDef(t *testing.T, defs []model.Definition, name string) model.Definition {
	t.Helper()
	for _, d := range defs {
		if len(d.OfficialPath) > 0 && d.OfficialPath[len(d.OfficialPath)-1] == name {
			return d
		}
	}
	t.Fatalf("no definition named %q among %+v", name, defs)
	return model.Definition{}
}

func TestGoInheritanceEmitsUsageAndClassTag(t *testing.T) {
	defs, _ := extractFile(t, "animals.go", `package main

type Animal struct {
	Name string
}

type Dog struct {
	Animal
	Breed string
}
`)
	dog := findDef(t, defs, "Dog")
	require.Equal(t, model.ClassTag("go", "Dog"), dog.ThisIsAClass)
	require.Contains(t, dog.ThisClassDerivedFrom, model.ClassTag("go", "Animal"))
	require.Len(t, dog.Usages, 1)
	require.Equal(t, "?::"+model.ClassTag("go", "Animal"), dog.Usages[0].TargetsForGuesswork[0])
}

func TestGoCallResolvesWithinSameFile(t *testing.T) {
	defs, _ := extractFile(t, "main.go", `package main

func helper() {}

func main() {
	helper()
}
`)
	mainFn := findDef(t, defs, "main")
	require.Len(t, mainFn.Usages, 1)
	require.Equal(t, "file::helper", mainFn.Usages[0].ResolvedAs)
	require.Equal(t, "up", mainFn.Usages[0].DebugHint)
}

func TestGoCallWithNoLocalDeclarationIsHomeless(t *testing.T) {
	defs, _ := extractFile(t, "main.go", `package main

func main() {
	fmt.Println("hi")
}
`)
	mainFn := findDef(t, defs, "main")
	var printlnUsage *model.Usage
	for i := range mainFn.Usages {
		if mainFn.Usages[i].DebugHint == "fmt" {
			printlnUsage = &mainFn.Usages[i]
		}
	}
	require.NotNil(t, printlnUsage)
	require.Empty(t, printlnUsage.ResolvedAs)
	require.Equal(t, []string{"Println"}, printlnUsage.TargetsForGuesswork)
}

func TestGoFunctionArgumentCallIsNotAUsage(t *testing.T) {
	defs, _ := extractFile(t, "main.go", `package main

func process(callback func()) {
	callback()
}
`)
	process := findDef(t, defs, "process")
	require.Empty(t, process.Usages, "calling a function argument is not an external reference")
}

func TestGoParameterMethodCallKeepsOnlyTheTypedGuess(t *testing.T) {
	defs, _ := extractFile(t, "main.go", `package main

type Thing struct{}

func (t Thing) Do() {}

func process(v Thing) {
	v.Do()
}
`)
	process := findDef(t, defs, "process")
	require.Len(t, process.Usages, 1, "the bare parameter reference is dropped; only the typed call guess survives")
	require.Equal(t, []string{"?::" + model.ClassTag("go", "Thing") + "::Do"}, process.Usages[0].TargetsForGuesswork)
}

func TestGoLocalVariableIsNotTreatedAsParameter(t *testing.T) {
	defs, _ := extractFile(t, "main.go", `package main

type Thing struct{}

func (t Thing) Do() {}

func process() {
	v := Thing()
	v.Do()
}
`)
	process := findDef(t, defs, "process")
	require.Len(t, process.Usages, 3)

	var sawLocalRef, sawTypedGuess, sawCtorResolved bool
	for _, u := range process.Usages {
		switch {
		case len(u.TargetsForGuesswork) == 1 && u.TargetsForGuesswork[0] == "v":
			sawLocalRef = true
		case len(u.TargetsForGuesswork) == 1 && u.TargetsForGuesswork[0] == "?::"+model.ClassTag("go", "Thing")+"::Do":
			sawTypedGuess = true
		case u.ResolvedAs == "file::Thing":
			sawCtorResolved = true
		}
	}
	require.True(t, sawLocalRef, "a body-local variable reference must survive, unlike a parameter's")
	require.True(t, sawTypedGuess, "the call through the local still guesses via the local's inferred type")
	require.True(t, sawCtorResolved, "the constructor-style call resolves to the in-file type declaration")
}

func TestLocalVariablesAreNotDefinitions(t *testing.T) {
	defs, _ := extractFile(t, "main.go", `package main

func main() {
	x := 5
	_ = x
}
`)
	for _, d := range defs {
		require.NotEqual(t, "x", d.OfficialPath[len(d.OfficialPath)-1])
	}
}

func TestPythonTypeofCallThroughCallerVariable(t *testing.T) {
	defs, _ := extractFile(t, "animals.py", `class Dog:
    def bark(self):
        pass

def handle(d: Dog):
    d.bark()
`)
	handle := findDef(t, defs, "handle")
	require.NotEmpty(t, handle.Usages)
	last := handle.Usages[len(handle.Usages)-1]
	require.Contains(t, last.TargetsForGuesswork[0], model.ClassTag("python", "Dog"))
}

func TestCppBaseClassChainRecorded(t *testing.T) {
	defs, _ := extractFile(t, "animals.cpp", `class Animal {
public:
    void speak();
};

class Dog : public Animal {
public:
    void speak() {
        bark();
    }
};
`)
	dog := findDef(t, defs, "Dog")
	require.Contains(t, dog.ThisClassDerivedFrom, model.ClassTag("cpp", "Animal"))
}
