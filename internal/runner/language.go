package runner

import (
	"errors"
	"fmt"
	"slices"
)

var ErrUnknownLanguage = errors.New("unknown language")

// Language describes how to build and start a program. Commands are shell
// command lines run in the directory that holds the source file.
type Language struct {
	ID            string `toml:"id" json:"id"`
	Name          string `toml:"name" json:"name"`
	CodeFname     string `toml:"code_fname" json:"code_fname"`
	CompileCmd    string `toml:"compile_cmd" json:"compile_cmd,omitempty"`
	CompiledFname string `toml:"compiled_fname" json:"compiled_fname,omitempty"`
	ExecCmd       string `toml:"exec_cmd" json:"exec_cmd"`
	HelloWorld    string `toml:"hello_world" json:"-"`
}

// Compiled reports whether the language has a separate build phase.
func (l Language) Compiled() bool {
	return l.CompileCmd != ""
}

func (l Language) validate() error {
	if l.ID == "" || l.CodeFname == "" || l.ExecCmd == "" {
		return fmt.Errorf("language %q: id, code_fname and exec_cmd are required", l.ID)
	}
	if l.Compiled() && l.CompiledFname == "" {
		return fmt.Errorf("language %q: compiled_fname is required with compile_cmd", l.ID)
	}
	return nil
}

// Catalog is the set of languages submissions may use.
type Catalog struct {
	byID  map[string]Language
	order []string
}

func NewCatalog(langs []Language) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]Language, len(langs))}
	for _, l := range langs {
		if err := l.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[l.ID]; dup {
			return nil, fmt.Errorf("language %q is defined twice", l.ID)
		}
		c.byID[l.ID] = l
		c.order = append(c.order, l.ID)
	}
	return c, nil
}

func (c *Catalog) Get(id string) (Language, error) {
	l, ok := c.byID[id]
	if !ok {
		return Language{}, fmt.Errorf("%w: %q", ErrUnknownLanguage, id)
	}
	return l, nil
}

// All returns the languages in definition order.
func (c *Catalog) All() []Language {
	res := make([]Language, 0, len(c.order))
	for _, id := range c.order {
		res = append(res, c.byID[id])
	}
	return res
}

func (c *Catalog) IDs() []string {
	return slices.Clone(c.order)
}

func DefaultLanguages() []Language {
	return []Language{
		{
			ID:         "python3",
			Name:       "Python 3",
			CodeFname:  "main.py",
			ExecCmd:    "python3 main.py",
			HelloWorld: "print('Hello, World!')\n",
		},
		{
			ID:            "cpp17",
			Name:          "C++17 (GCC)",
			CodeFname:     "main.cpp",
			CompileCmd:    "g++ -std=c++17 -O2 -o main main.cpp",
			CompiledFname: "main",
			ExecCmd:       "./main",
			HelloWorld:    "#include <iostream>\nint main() { std::cout << \"Hello, World!\" << std::endl; }\n",
		},
		{
			ID:            "c11",
			Name:          "C11 (GCC)",
			CodeFname:     "main.c",
			CompileCmd:    "gcc -std=c11 -O2 -o main main.c -lm",
			CompiledFname: "main",
			ExecCmd:       "./main",
			HelloWorld:    "#include <stdio.h>\nint main() { puts(\"Hello, World!\"); return 0; }\n",
		},
		{
			ID:            "go",
			Name:          "Go",
			CodeFname:     "main.go",
			CompileCmd:    "GOCACHE=/tmp/gocache go build -o main main.go",
			CompiledFname: "main",
			ExecCmd:       "./main",
			HelloWorld:    "package main\n\nimport \"fmt\"\n\nfunc main() { fmt.Println(\"Hello, World!\") }\n",
		},
		{
			ID:            "java",
			Name:          "Java",
			CodeFname:     "Main.java",
			CompileCmd:    "javac Main.java && jar cfe main.jar Main *.class",
			CompiledFname: "main.jar",
			ExecCmd:       "java -Xss64m -jar main.jar",
			HelloWorld:    "public class Main { public static void main(String[] a) { System.out.println(\"Hello, World!\"); } }\n",
		},
		{
			ID:         "javascript",
			Name:       "JavaScript (Node.js)",
			CodeFname:  "main.js",
			ExecCmd:    "node main.js",
			HelloWorld: "console.log('Hello, World!');\n",
		},
	}
}
