package script

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/zjrosen/socon/internal/module"
)

var entrypointType = reflect.TypeOf(module.Entrypoint(nil))

// evalGo interprets a package main script and exposes its exported top-level
// declarations as symbols. Functions shaped like module.Entrypoint are
// converted so callers can invoke them without reflection.
func evalGo(file string) ([]module.Symbol, error) {
	code, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return nil, fmt.Errorf("%s is empty", file)
	}

	names, err := exportedNames(file, code)
	if err != nil {
		return nil, err
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib symbols: %w", err)
	}
	if _, err := i.EvalPath(file); err != nil {
		return nil, fmt.Errorf("interpret %s: %w", file, err)
	}

	symbols := make([]module.Symbol, 0, len(names))
	for _, name := range names {
		v, err := i.Eval(name)
		if err != nil {
			return nil, fmt.Errorf("%s: resolve %s: %w", file, name, err)
		}
		if !v.IsValid() {
			continue
		}
		symbols = append(symbols, module.Sym(name, convert(v)))
	}
	return symbols, nil
}

// exportedNames lists exported top-level funcs, vars and consts in source
// order. Types and methods are skipped.
func exportedNames(file string, code []byte) ([]string, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, file, code, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	if f.Name.Name != "main" {
		return nil, fmt.Errorf("%s must declare package main, found %s", file, f.Name.Name)
	}

	var names []string
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv == nil && d.Name.IsExported() {
				names = append(names, d.Name.Name)
			}
		case *ast.GenDecl:
			if d.Tok != token.VAR && d.Tok != token.CONST {
				continue
			}
			for _, spec := range d.Specs {
				vs, ok := spec.(*ast.ValueSpec)
				if !ok {
					continue
				}
				for _, n := range vs.Names {
					if n.IsExported() {
						names = append(names, n.Name)
					}
				}
			}
		}
	}
	return names, nil
}

func convert(v reflect.Value) any {
	if v.Kind() == reflect.Func {
		if fn, ok := asEntrypoint(v); ok {
			return fn
		}
	}
	return v.Interface()
}

func asEntrypoint(v reflect.Value) (module.Entrypoint, bool) {
	t := v.Type()
	if t.NumIn() != 1 || t.In(0) != entrypointType.In(0) || t.NumOut() != 2 ||
		t.Out(0).Kind() != reflect.String || !t.Out(1).Implements(entrypointType.Out(1)) {
		return nil, false
	}
	return func(args []string) (string, error) {
		out := v.Call([]reflect.Value{reflect.ValueOf(args)})
		if errv := out[1]; !errv.IsNil() {
			return out[0].String(), errv.Interface().(error)
		}
		return out[0].String(), nil
	}, true
}
