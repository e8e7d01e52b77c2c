package weffo

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/jacoelho/weffo/errors"
	"github.com/jacoelho/weffo/internal/xslt"
	"github.com/jacoelho/weffo/pkg/xmltree"
)

const greetingView = `<html><?weffo-param greeting?><body><h1 id="title">Placeholder</h1><p><?weffo-value $greeting?></p></body></html>`

func render(t *testing.T, p *Pipeline, tmpl *Template, model string, opts ...ExecuteOption) string {
	t.Helper()
	var buf bytes.Buffer
	if err := p.Execute(tmpl, StringSource(model, "model.xml"), ToWriter(&buf), opts...); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	return buf.String()
}

func compileView(t *testing.T, p *Pipeline, view string) *Template {
	t.Helper()
	tmpl, err := p.Compile(StringSource(view, "view.xml"))
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return tmpl
}

func checkOutput(t *testing.T, want, got string) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestBoundElement(t *testing.T) {
	p := New()
	tmpl := compileView(t, p, `<doc><x id="x">prototype</x></doc>`)

	checkOutput(t, `<doc><x id="x">Hello</x></doc>`, render(t, p, tmpl, `<x>Hello</x>`))
	checkOutput(t, `<doc><x id="x">prototype</x></doc>`, render(t, p, tmpl, `<y>Hello</y>`))
}

func TestViewAnnotations(t *testing.T) {
	tests := []struct {
		name   string
		view   string
		model  string
		params Params
		want   string
	}{
		{
			name:   "bound element and value",
			view:   greetingView,
			model:  `<page><title>Hello</title></page>`,
			params: Params{"greeting": String("hi")},
			want:   `<html><body><h1 id="title">Hello</h1><p>hi</p></body></html>`,
		},
		{
			name:  "repeat",
			view:  `<ul><li><?weffo-repeat /items/item?><?weffo-value .?></li></ul>`,
			model: `<items><item>a</item><item>b</item></items>`,
			want:  `<ul><li>a</li><li>b</li></ul>`,
		},
		{
			name:  "repeat with bound child",
			view:  `<ul><li><?weffo-repeat //user?><b id="name">?</b></li></ul>`,
			model: `<users><user><name>ada</name></user><user/></users>`,
			want:  `<ul><li><b id="name">ada</b></li><li><b id="name">?</b></li></ul>`,
		},
		{
			name:   "attribute value templates",
			view:   `<a><?weffo-param base?><link href="{$base}/x" data="{{literal}}"/></a>`,
			model:  `<m/>`,
			params: Params{"base": String("/app")},
			want:   `<a><link href="/app/x" data="{literal}"/></a>`,
		},
		{
			name:  "html output",
			view:  `<?weffo-output html?><html><body><br/><?weffo-value count(//i)?></body></html>`,
			model: `<m><i/><i/></m>`,
			want:  `<html><body><br>2</body></html>`,
		},
		{
			name:  "text output",
			view:  `<?weffo-output text?><t>total: <?weffo-value sum(//n)?></t>`,
			model: `<m><n>2</n><n>3</n></m>`,
			want:  `total: 5`,
		},
		{
			name:  "comments and foreign instructions kept",
			view:  `<r><!-- note --><?keep me?></r>`,
			model: `<m/>`,
			want:  `<r><!-- note --><?keep me?></r>`,
		},
		{
			name:  "namespaced view",
			view:  `<h:html xmlns:h="http://www.w3.org/1999/xhtml"><h:p id="msg">x</h:p></h:html>`,
			model: `<msg>ok</msg>`,
			want:  `<h:html xmlns:h="http://www.w3.org/1999/xhtml"><h:p id="msg">ok</h:p></h:html>`,
		},
		{
			name:   "duplicate parameter declarations",
			view:   `<r><?weffo-param a?><?weffo-param a?><?weffo-value $a?></r>`,
			model:  `<m/>`,
			params: Params{"a": Number(1.5)},
			want:   `<r>1.5</r>`,
		},
		{
			name:  "id with double quote",
			view:  `<a><b id='q"x'>p</b></a>`,
			model: `<m/>`,
			want:  `<a><b id="q&quot;x">p</b></a>`,
		},
		{
			name:  "id with single quote",
			view:  `<a><b id="q'x">p</b></a>`,
			model: `<m/>`,
			want:  `<a><b id="q'x">p</b></a>`,
		},
		{
			name:  "id with both quote characters",
			view:  `<a><b id="&quot;a'b&quot;c">p</b></a>`,
			model: `<m/>`,
			want:  `<a><b id="&quot;a'b&quot;c">p</b></a>`,
		},
	}
	p := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := compileView(t, p, tt.view)
			checkOutput(t, tt.want, render(t, p, tmpl, tt.model, WithParams(tt.params)))
		})
	}
}

func TestCompiledTemplateMatchesOneShot(t *testing.T) {
	p := New()
	view := StringSource(greetingView, "view.xml")
	tmpl, err := p.TemplateFromPrototype(view)
	if err != nil {
		t.Fatalf("TemplateFromPrototype() error = %v", err)
	}

	for _, model := range []string{
		`<page><title>One</title></page>`,
		`<page><title>Two</title></page>`,
		`<page/>`,
	} {
		params := Params{"greeting": String("hey")}
		var cached, oneShot bytes.Buffer
		if err := p.OutputFromTemplate(tmpl, StringSource(model, "m.xml"), ToWriter(&cached), WithParams(params)); err != nil {
			t.Fatalf("OutputFromTemplate() error = %v", err)
		}
		if err := p.OutputFromPrototype(view, StringSource(model, "m.xml"), ToWriter(&oneShot), WithParams(params)); err != nil {
			t.Fatalf("OutputFromPrototype() error = %v", err)
		}
		checkOutput(t, oneShot.String(), cached.String())
	}
}

func TestCompileTwiceYieldsIndependentTemplates(t *testing.T) {
	p := New()
	a := compileView(t, p, greetingView)
	b := compileView(t, p, greetingView)
	if a == b {
		t.Fatal("Compile() returned the same template twice")
	}

	model := `<page><title>T</title></page>`
	opt := WithParams(Params{"greeting": String("g")})
	if diff := cmp.Diff(render(t, p, a, model, opt), render(t, p, b, model, opt)); diff != "" {
		t.Errorf("templates differ (-a +b):\n%s", diff)
	}
}

func TestParameterBinding(t *testing.T) {
	p := New()
	tmpl := compileView(t, p, `<r><?weffo-param a?><?weffo-param b?><a><?weffo-value $a?></a><b><?weffo-value $b?></b></r>`)
	if diff := cmp.Diff([]string{"a", "b"}, tmpl.Params()); diff != "" {
		t.Errorf("Params() mismatch (-want +got):\n%s", diff)
	}

	got := render(t, p, tmpl, `<m/>`, WithParams(Params{"a": String("1"), "b": String("2"), "c": String("9")}))
	checkOutput(t, `<r><a>1</a><b>2</b></r>`, got)

	checkOutput(t, `<r><a/><b/></r>`, render(t, p, tmpl, `<m/>`))
}

func TestNodeSetParameter(t *testing.T) {
	p := New()
	tmpl := compileView(t, p, `<r><?weffo-param items?><n><?weffo-value count($items/i)?></n></r>`)
	doc, err := xmltree.NewParser(xmltree.NamespaceAware).Parse(strings.NewReader(`<l><i/><i/><i/></l>`), "list.xml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	got := render(t, p, tmpl, `<m/>`, WithParams(Params{"items": NodeSet(doc.DocumentElement())}))
	checkOutput(t, `<r><n>3</n></r>`, got)
}

func TestResolver(t *testing.T) {
	p := New()
	tmpl := compileView(t, p, `<r><?weffo-param prefs?><t><?weffo-value document($prefs)/prefs/theme?></t></r>`)
	prefs := Params{"prefs": String("urn:prefs")}

	t.Run("resolves", func(t *testing.T) {
		var calls []string
		r := ResolverFunc(func(href, base string) (Source, error) {
			calls = append(calls, href)
			return StringSource(`<prefs><theme>dark</theme></prefs>`, href), nil
		})
		checkOutput(t, `<r><t>dark</t></r>`, render(t, p, tmpl, `<m/>`, WithParams(prefs), WithResolver(r)))
		if diff := cmp.Diff([]string{"urn:prefs"}, calls); diff != "" {
			t.Errorf("resolver calls mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("failure is returned unchanged", func(t *testing.T) {
		errBoom := stderrors.New("boom")
		r := ResolverFunc(func(string, string) (Source, error) { return nil, errBoom })
		var buf bytes.Buffer
		err := p.Execute(tmpl, StringSource(`<m/>`, "m.xml"), ToWriter(&buf), WithParams(prefs), WithResolver(r))
		if !stderrors.Is(err, errBoom) {
			t.Fatalf("Execute() error = %v, want %v", err, errBoom)
		}
		if !stderrors.Is(err, errors.ErrResolver) {
			t.Errorf("Execute() error = %v, want code %s", err, errors.ErrResolver)
		}
		if got := errors.StageOf(err); got != errors.StageExecute {
			t.Errorf("StageOf() = %q, want %q", got, errors.StageExecute)
		}
		if buf.Len() != 0 {
			t.Errorf("output written on failure: %q", buf.String())
		}
	})

	t.Run("declined falls back", func(t *testing.T) {
		fsys := fstest.MapFS{"prefs.xml": {Data: []byte(`<prefs><theme>light</theme></prefs>`)}}
		fp := New(WithFallbackResolver(NewFSResolver(fsys)))
		ft := compileView(t, fp, `<r><?weffo-param prefs?><t><?weffo-value document($prefs)/prefs/theme?></t></r>`)
		declined := ResolverFunc(func(string, string) (Source, error) { return nil, nil })
		got := render(t, fp, ft, `<m/>`, WithParams(Params{"prefs": String("prefs.xml")}), WithResolver(declined))
		checkOutput(t, `<r><t>light</t></r>`, got)
	})

	t.Run("malformed resolved document", func(t *testing.T) {
		r := ResolverFunc(func(href, _ string) (Source, error) { return StringSource(`<prefs>`, href), nil })
		err := p.Execute(tmpl, StringSource(`<m/>`, "m.xml"), &TreeResult{}, WithParams(prefs), WithResolver(r))
		for _, code := range []error{errors.ErrParse, errors.ErrTransform} {
			if !stderrors.Is(err, code) {
				t.Errorf("Execute() error = %v, want code %v", err, code)
			}
		}
	})
}

func TestNilResolverEqualsNoResolver(t *testing.T) {
	p := New()
	tmpl := compileView(t, p, greetingView)
	model := `<page><title>x</title></page>`
	declined := ResolverFunc(func(string, string) (Source, error) { return nil, nil })
	checkOutput(t, render(t, p, tmpl, model), render(t, p, tmpl, model, WithResolver(declined)))
}

func TestDefaultFileResolver(t *testing.T) {
	dir := t.TempDir()
	for name, data := range map[string]string{
		"prefs.xml": `<p>file</p>`,
		"view.xml":  `<r><?weffo-value document('prefs.xml')/p?></r>`,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	if err := OutputFromPrototype(FileSource(filepath.Join(dir, "view.xml")), StringSource(`<m/>`, "m.xml"), ToWriter(&buf)); err != nil {
		t.Fatalf("OutputFromPrototype() error = %v", err)
	}
	checkOutput(t, `<r>file</r>`, buf.String())
}

func TestErrors(t *testing.T) {
	p := New()
	tmpl := compileView(t, p, greetingView)
	failing := compileView(t, p, `<a><?weffo-value nope()?></a>`)

	tests := []struct {
		name  string
		run   func(Result) error
		codes []error
		stage errors.Stage
	}{
		{
			name:  "malformed view",
			run:   func(r Result) error { return p.OutputFromPrototype(StringSource(`<a><b></a>`, "bad.xml"), StringSource(`<m/>`, "m.xml"), r) },
			codes: []error{errors.ErrParse},
			stage: errors.StageMetaApply,
		},
		{
			name:  "invalid expression in view",
			run:   func(r Result) error { return p.OutputFromPrototype(StringSource(`<a><?weffo-value 1 +?></a>`, "v.xml"), StringSource(`<m/>`, "m.xml"), r) },
			codes: []error{errors.ErrTransform},
			stage: errors.StageRecompile,
		},
		{
			name:  "malformed model",
			run:   func(r Result) error { return p.Execute(tmpl, StringSource(`<m>`, "m.xml"), r) },
			codes: []error{errors.ErrTransform, errors.ErrParse},
			stage: errors.StageExecute,
		},
		{
			name:  "runtime failure",
			run:   func(r Result) error { return p.Execute(failing, StringSource(`<m/>`, "m.xml"), r) },
			codes: []error{errors.ErrTransform},
			stage: errors.StageExecute,
		},
		{
			name:  "nil template",
			run:   func(r Result) error { return p.Execute(nil, StringSource(`<m/>`, "m.xml"), r) },
			codes: []error{errors.ErrTransform},
			stage: errors.StageExecute,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := tt.run(ToWriter(&buf))
			if err == nil {
				t.Fatal("err = nil, want error")
			}
			for _, code := range tt.codes {
				if !stderrors.Is(err, code) {
					t.Errorf("err = %v, want code %v", err, code)
				}
			}
			if got := errors.StageOf(err); got != tt.stage {
				t.Errorf("StageOf() = %q, want %q", got, tt.stage)
			}
			if buf.Len() != 0 {
				t.Errorf("output written on failure: %q", buf.String())
			}
		})
	}
}

func TestViewErrorPosition(t *testing.T) {
	_, err := New().Compile(StringSource("<a>\n<b></a>", "bad.xml"))
	e, ok := errors.AsError(err)
	if !ok {
		t.Fatalf("Compile() error = %v, want *errors.Error", err)
	}
	if e.Code != errors.ErrParse || e.Input != "bad.xml" || e.Line != 2 {
		t.Errorf("error = {%s %q line %d}, want {%s %q line 2}", e.Code, e.Input, e.Line, errors.ErrParse, "bad.xml")
	}
}

func TestRejectsNamespaceUnawareView(t *testing.T) {
	doc, err := xmltree.NewParser(xmltree.NamespaceUnaware).Parse(strings.NewReader(`<a/>`), "a.xml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if _, err := New().Compile(TreeSource(doc)); !stderrors.Is(err, errors.ErrParse) {
		t.Errorf("Compile() error = %v, want %v", err, errors.ErrParse)
	}
}

func TestParserDepthBound(t *testing.T) {
	view := strings.Repeat("<a>", 300) + strings.Repeat("</a>", 300)

	_, err := New().Compile(StringSource(view, "deep.xml"))
	if !stderrors.Is(err, errors.ErrParse) {
		t.Fatalf("Compile() error = %v, want %v", err, errors.ErrParse)
	}
	if !strings.Contains(err.Error(), fmt.Sprintf("depth exceeds %d", defaultMaxDepth)) {
		t.Errorf("Compile() error = %v, want depth bound in message", err)
	}

	p := New(WithParserLimits(512, 0))
	tmpl := compileView(t, p, view)
	want := strings.Repeat("<a>", 299) + "<a/>" + strings.Repeat("</a>", 299)
	checkOutput(t, want, render(t, p, tmpl, `<m/>`))
}

func TestTransformFromPrototype(t *testing.T) {
	var buf bytes.Buffer
	if err := TransformFromPrototype(StringSource(greetingView, "view.xml"), ToWriter(&buf)); err != nil {
		t.Fatalf("TransformFromPrototype() error = %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?><xsl:stylesheet`) {
		t.Errorf("generated stylesheet starts with %.60q", out)
	}
	for _, want := range []string{`<xsl:param name="greeting"/>`, `<xsl:value-of select="$greeting"/>`} {
		if !strings.Contains(out, want) {
			t.Errorf("generated stylesheet lacks %s:\n%s", want, out)
		}
	}

	doc, err := xmltree.NewParser(xmltree.NamespaceAware).Parse(strings.NewReader(out), "generated.xsl")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	sheet, err := xslt.Compile(doc)
	if err != nil {
		t.Fatalf("xslt.Compile() error = %v", err)
	}
	if diff := cmp.Diff([]string{"greeting"}, sheet.Params()); diff != "" {
		t.Errorf("Params() mismatch (-want +got):\n%s", diff)
	}
}

func TestResults(t *testing.T) {
	p := New()
	tmpl := compileView(t, p, `<r id="r">x</r>`)

	t.Run("tree", func(t *testing.T) {
		var res TreeResult
		if err := p.Execute(tmpl, StringSource(`<r>y</r>`, "m.xml"), &res); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if res.Document == nil {
			t.Fatal("Document = nil")
		}
		if got := res.Document.DocumentElement().StringValue(); got != "y" {
			t.Errorf("StringValue() = %q, want %q", got, "y")
		}
		if err := res.WriteResult(res.Document, res.Output); !stderrors.Is(err, ErrResultUsed) {
			t.Errorf("second WriteResult() error = %v, want %v", err, ErrResultUsed)
		}
	})

	t.Run("handler", func(t *testing.T) {
		b := xmltree.NewBuilder("copy.xml")
		if err := p.Execute(tmpl, StringSource(`<m/>`, "m.xml"), ToHandler(b)); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		got, err := xmltree.SerializeString(b.Document(), xmltree.OutputOptions{OmitXMLDeclaration: true})
		if err != nil {
			t.Fatalf("SerializeString() error = %v", err)
		}
		checkOutput(t, `<r id="r">x</r>`, got)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.xml")
		if err := p.Execute(tmpl, StringSource(`<m/>`, "m.xml"), ToFile(path)); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		checkOutput(t, `<r id="r">x</r>`, string(data))
	})

	t.Run("write once", func(t *testing.T) {
		var buf bytes.Buffer
		res := ToWriter(&buf)
		if err := p.Execute(tmpl, StringSource(`<m/>`, "m.xml"), res); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		err := p.Execute(tmpl, StringSource(`<m/>`, "m.xml"), res)
		if !stderrors.Is(err, ErrResultUsed) {
			t.Fatalf("second Execute() error = %v, want %v", err, ErrResultUsed)
		}
		if got := errors.StageOf(err); got != errors.StageOutput {
			t.Errorf("StageOf() = %q, want %q", got, errors.StageOutput)
		}
	})
}

func TestObserverTransitions(t *testing.T) {
	var mu sync.Mutex
	var got []string
	obs := ObserverFunc(func(tr Transition) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, tr.From.String()+">"+tr.To.String())
	})
	p := New(WithObserver(obs))
	check := func(want []string) {
		t.Helper()
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("transitions mismatch (-want +got):\n%s", diff)
		}
		got = nil
	}

	if err := p.OutputFromPrototype(StringSource(`<a/>`, "v.xml"), StringSource(`<m/>`, "m.xml"), &TreeResult{}); err != nil {
		t.Fatalf("OutputFromPrototype() error = %v", err)
	}
	check([]string{
		"INIT>META_APPLIED",
		"META_APPLIED>INTERMEDIATE_PARSED",
		"INTERMEDIATE_PARSED>TEMPLATE_COMPILED",
		"TEMPLATE_COMPILED>MODEL_APPLIED",
		"MODEL_APPLIED>OUTPUT_WRITTEN",
	})

	if err := p.TransformFromPrototype(StringSource(`<a/>`, "v.xml"), &TreeResult{}); err != nil {
		t.Fatalf("TransformFromPrototype() error = %v", err)
	}
	check([]string{"INIT>META_APPLIED", "META_APPLIED>OUTPUT_WRITTEN"})

	tmpl, err := p.TemplateFromPrototype(StringSource(`<a/>`, "v.xml"))
	if err != nil {
		t.Fatalf("TemplateFromPrototype() error = %v", err)
	}
	if last := got[len(got)-1]; last != "TEMPLATE_COMPILED>TEMPLATE_CACHED" {
		t.Errorf("last transition = %s, want TEMPLATE_COMPILED>TEMPLATE_CACHED", last)
	}
	got = nil

	if err := p.Execute(tmpl, StringSource(`<m`, "m.xml"), &TreeResult{}); err == nil {
		t.Fatal("Execute() err = nil, want parse failure")
	}
	check([]string{"TEMPLATE_CACHED>FAILED"})
}

func TestConcurrentFirstCompile(t *testing.T) {
	p := New()
	var g errgroup.Group
	templates := make([]*Template, 32)
	for i := range templates {
		i := i
		g.Go(func() error {
			tmpl, err := p.Compile(StringSource(greetingView, "view.xml"))
			templates[i] = tmpl
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if n := metaConstructions.Load(); n != 1 {
		t.Errorf("meta-template constructed %d times, want 1", n)
	}

	meta, err := MetaTemplate()
	if err != nil {
		t.Fatalf("MetaTemplate() error = %v", err)
	}
	if again, _ := MetaTemplate(); again != meta {
		t.Error("MetaTemplate() returned a different instance")
	}
}

func TestConcurrentExecution(t *testing.T) {
	p := New()
	tmpl := compileView(t, p, greetingView)
	var g errgroup.Group
	for i := 0; i < 64; i++ {
		i := i
		g.Go(func() error {
			greeting := strings.Repeat("x", i%7+1)
			var buf bytes.Buffer
			err := p.Execute(tmpl, StringSource(`<page><title>T</title></page>`, "m.xml"), ToWriter(&buf),
				WithParams(Params{"greeting": String(greeting)}))
			if err != nil {
				return err
			}
			want := `<html><body><h1 id="title">T</h1><p>` + greeting + `</p></body></html>`
			if buf.String() != want {
				return fmt.Errorf("output = %s, want %s", buf.String(), want)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestWithMetaTemplate(t *testing.T) {
	fsys := fstest.MapFS{
		"meta.xsl": {Data: []byte(`<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform"
  xmlns:a="urn:alias">
  <xsl:namespace-alias stylesheet-prefix="a" result-prefix="xsl"/>
  <xsl:template match="/">
    <a:stylesheet version="1.0"><a:output omit-xml-declaration="yes"/>
      <a:template match="/"><fixed><a:value-of select="name(*)"/></fixed></a:template>
    </a:stylesheet>
  </xsl:template>
</xsl:stylesheet>`)},
		"broken.xsl": {Data: []byte(`<xsl:stylesheet`)},
	}
	meta, err := LoadMetaTemplate(fsys, "meta.xsl")
	if err != nil {
		t.Fatalf("LoadMetaTemplate() error = %v", err)
	}

	p := New(WithMetaTemplate(meta))
	tmpl := compileView(t, p, `<ignored/>`)
	checkOutput(t, `<fixed>model</fixed>`, render(t, p, tmpl, `<model/>`))

	for _, path := range []string{"broken.xsl", "missing.xsl"} {
		_, err := LoadMetaTemplate(fsys, path)
		if !stderrors.Is(err, errors.ErrConfiguration) {
			t.Errorf("LoadMetaTemplate(%s) error = %v, want %v", path, err, errors.ErrConfiguration)
		}
		if got := errors.StageOf(err); got != errors.StageMetaLoad {
			t.Errorf("LoadMetaTemplate(%s) stage = %q, want %q", path, got, errors.StageMetaLoad)
		}
	}
}

func TestMessages(t *testing.T) {
	fsys := fstest.MapFS{"meta.xsl": {Data: []byte(`<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform"
  xmlns:a="urn:alias">
  <xsl:namespace-alias stylesheet-prefix="a" result-prefix="xsl"/>
  <xsl:template match="/">
    <a:stylesheet version="1.0"><a:template match="/"><a:message>seen <a:value-of select="name(*)"/></a:message><done/></a:template></a:stylesheet>
  </xsl:template>
</xsl:stylesheet>`)}}
	meta, err := LoadMetaTemplate(fsys, "meta.xsl")
	if err != nil {
		t.Fatalf("LoadMetaTemplate() error = %v", err)
	}
	p := New(WithMetaTemplate(meta))
	tmpl := compileView(t, p, `<v/>`)

	var msgs []string
	var res TreeResult
	if err := p.Execute(tmpl, StringSource(`<m/>`, "m.xml"), &res, WithMessageHandler(func(s string) { msgs = append(msgs, s) })); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if diff := cmp.Diff([]string{"seen m"}, msgs); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}
