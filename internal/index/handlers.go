package index

import (
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"
)

// HandlerKind names the framework an HTTP handler signature belongs to.
type HandlerKind string

const (
	HandlerStdlib HandlerKind = "stdlib"
	HandlerGin    HandlerKind = "gin"
	HandlerEcho   HandlerKind = "echo"
)

// matchHTTPHandler checks if a function has an HTTP handler signature.
// Returns the handler kind or empty string if no match. Unexported functions
// never match.
func matchHTTPHandler(fn *ssa.Function) HandlerKind {
	if fn == nil || fn.Signature == nil {
		return ""
	}
	if fn.Name() == "init" || !token.IsExported(fn.Name()) {
		return ""
	}

	params := fn.Signature.Params()
	n := params.Len()

	// func(http.ResponseWriter, *http.Request), optionally with a leading context.Context
	if n == 2 || n == 3 {
		if isNamed(params.At(n-2).Type(), "net/http", "ResponseWriter") &&
			isPointerTo(params.At(n-1).Type(), "net/http", "Request") &&
			(n == 2 || isNamed(params.At(0).Type(), "context", "Context")) {
			return HandlerStdlib
		}
	}

	if n == 1 {
		t := params.At(0).Type()
		if isPointerTo(t, "github.com/gin-gonic/gin", "Context") {
			return HandlerGin
		}
		results := fn.Signature.Results()
		if results.Len() == 1 && isNamed(t, "github.com/labstack/echo/v4", "Context") {
			return HandlerEcho
		}
	}
	return ""
}

// isNamed reports whether t is the named type pkgPath.name.
func isNamed(t types.Type, pkgPath, name string) bool {
	named, ok := types.Unalias(t).(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	return obj != nil && obj.Pkg() != nil && obj.Pkg().Path() == pkgPath && obj.Name() == name
}

// isPointerTo reports whether t is *pkgPath.name.
func isPointerTo(t types.Type, pkgPath, name string) bool {
	ptr, ok := types.Unalias(t).(*types.Pointer)
	return ok && isNamed(ptr.Elem(), pkgPath, name)
}
