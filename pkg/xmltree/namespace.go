package xmltree

import "errors"

var errUnboundPrefix = errors.New("unbound namespace prefix")

type nsScope struct {
	prefixes   map[string]string
	defaultNS  string
	defaultSet bool
}

type nsStack struct {
	scopes []nsScope
}

func (s *nsStack) push(scope nsScope) {
	s.scopes = append(s.scopes, scope)
}

func (s *nsStack) pop() {
	if len(s.scopes) == 0 {
		return
	}
	s.scopes = s.scopes[:len(s.scopes)-1]
}

func (s *nsStack) lookup(prefix string) (string, bool) {
	if prefix == "xml" {
		return XMLNamespace, true
	}
	if prefix == "" {
		for i := len(s.scopes) - 1; i >= 0; i-- {
			if s.scopes[i].defaultSet {
				return s.scopes[i].defaultNS, true
			}
		}
		return "", true
	}
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if ns, ok := s.scopes[i].prefixes[prefix]; ok {
			return ns, true
		}
	}
	return "", false
}

// collectNamespaceScope returns the bindings declared by attrs and the same
// declarations in attribute order.
func collectNamespaceScope(attrs []rawAttr) (nsScope, []Namespace) {
	scope := nsScope{}
	var decls []Namespace
	for _, a := range attrs {
		switch {
		case a.prefix == "" && a.local == "xmlns":
			scope.defaultNS = a.value
			scope.defaultSet = true
			decls = append(decls, Namespace{URI: a.value})
		case a.prefix == "xmlns":
			if a.local == "xml" || a.local == "xmlns" {
				continue
			}
			if scope.prefixes == nil {
				scope.prefixes = make(map[string]string, 1)
			}
			scope.prefixes[a.local] = a.value
			decls = append(decls, Namespace{Prefix: a.local, URI: a.value})
		}
	}
	return scope, decls
}

func isNamespaceDecl(a rawAttr) bool {
	return (a.prefix == "" && a.local == "xmlns") || a.prefix == "xmlns"
}
