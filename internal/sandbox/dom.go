package sandbox

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"
)

// DOM is the parsed document behind a frame
type DOM struct {
	doc     *goquery.Document
	changes []DOMChange
}

// ParseDOM parses markup into a DOM. The HTML5 parser never rejects input;
// missing html, head and body elements are synthesized.
func ParseDOM(html string) (*DOM, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return &DOM{doc: doc}, nil
}

// HTML serializes the whole document
func (d *DOM) HTML() (string, error) {
	return d.doc.Html()
}

// BodyHTML serializes the contents of the body element
func (d *DOM) BodyHTML() (string, error) {
	return d.doc.Find("body").Html()
}

// Query finds elements by CSS selector. Invalid selectors match nothing.
func (d *DOM) Query(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}

// ByID returns the first element with the given id
func (d *DOM) ByID(id string) *goquery.Selection {
	return d.doc.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.AttrOr("id", "") == id
	}).First()
}

// Scripts calls fn with the source of every classic inline script in
// document order. External and non-JavaScript scripts are skipped.
func (d *DOM) Scripts(fn func(index int, source string)) {
	d.doc.Find("script").Each(func(i int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		switch strings.ToLower(strings.TrimSpace(s.AttrOr("type", ""))) {
		case "", "text/javascript", "application/javascript":
			fn(i, s.Text())
		}
	})
}

// GetChanges returns accumulated DOM changes
func (d *DOM) GetChanges() []DOMChange {
	return append([]DOMChange{}, d.changes...)
}

// RecordChange adds a DOM change
func (d *DOM) RecordChange(change DOMChange) {
	d.changes = append(d.changes, change)
}

// describe renders a short selector for change records
func describe(s *goquery.Selection) string {
	desc := goquery.NodeName(s)
	if id, ok := s.Attr("id"); ok && id != "" {
		desc += "#" + id
	}
	return desc
}

// injectDOM installs the document proxy. Caller holds f.mu.
func (f *Frame) injectDOM() error {
	vm := f.vm
	document := vm.NewObject()

	methods := map[string]func(goja.FunctionCall) goja.Value{
		"getElementById": func(call goja.FunctionCall) goja.Value {
			return f.wrapElement(f.dom.ByID(call.Argument(0).String()))
		},
		"querySelector": func(call goja.FunctionCall) goja.Value {
			return f.wrapElement(f.dom.Query(call.Argument(0).String()).First())
		},
		"querySelectorAll": func(call goja.FunctionCall) goja.Value {
			return f.wrapAll(f.dom.Query(call.Argument(0).String()))
		},
		"getElementsByTagName": func(call goja.FunctionCall) goja.Value {
			return f.wrapAll(f.dom.Query(call.Argument(0).String()))
		},
		"getElementsByClassName": func(call goja.FunctionCall) goja.Value {
			class := call.Argument(0).String()
			return f.wrapAll(f.dom.Query("[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
				return s.HasClass(class)
			}))
		},
		"addEventListener": f.addEventListener,
	}
	for name, fn := range methods {
		if err := document.Set(name, fn); err != nil {
			return err
		}
	}

	accessors := map[string]func() goja.Value{
		"body":            func() goja.Value { return f.wrapElement(f.dom.Query("body").First()) },
		"head":            func() goja.Value { return f.wrapElement(f.dom.Query("head").First()) },
		"documentElement": func() goja.Value { return f.wrapElement(f.dom.Query("html").First()) },
		"readyState": func() goja.Value {
			if f.loaded {
				return vm.ToValue("complete")
			}
			return vm.ToValue("loading")
		},
	}
	for name, get := range accessors {
		getter := get
		if err := document.DefineAccessorProperty(name, vm.ToValue(func(goja.FunctionCall) goja.Value {
			return getter()
		}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			return err
		}
	}

	title := vm.ToValue(func(goja.FunctionCall) goja.Value {
		return vm.ToValue(strings.TrimSpace(f.dom.Query("title").First().Text()))
	})
	setTitle := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		f.dom.Query("title").First().SetText(call.Argument(0).String())
		return goja.Undefined()
	})
	if err := document.DefineAccessorProperty("title", title, setTitle, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return err
	}

	return vm.Set("document", document)
}

// wrapAll returns an array of element proxies
func (f *Frame) wrapAll(sel *goquery.Selection) goja.Value {
	out := make([]interface{}, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, f.wrapElement(s))
	})
	return f.vm.NewArray(out...)
}

// wrapElement creates a proxy for one element, or null for an empty selection
func (f *Frame) wrapElement(sel *goquery.Selection) goja.Value {
	vm := f.vm
	if sel == nil || sel.Length() == 0 {
		return goja.Null()
	}
	node := sel.First()
	elem := vm.NewObject()

	record := func(kind, property string, value interface{}) {
		f.dom.RecordChange(DOMChange{
			Type:     kind,
			Selector: describe(node),
			Property: property,
			Value:    value,
		})
	}

	accessor := func(name string, get func() goja.Value, set func(goja.Value)) {
		var setter goja.Value
		if set != nil {
			setter = vm.ToValue(func(call goja.FunctionCall) goja.Value {
				set(call.Argument(0))
				return goja.Undefined()
			})
		}
		_ = elem.DefineAccessorProperty(name, vm.ToValue(func(goja.FunctionCall) goja.Value {
			return get()
		}), setter, goja.FLAG_FALSE, goja.FLAG_TRUE)
	}

	attr := func(name string) func() goja.Value {
		return func() goja.Value { return vm.ToValue(node.AttrOr(name, "")) }
	}
	setAttr := func(name string) func(goja.Value) {
		return func(v goja.Value) {
			node.SetAttr(name, v.String())
			record("set_attribute", name, v.String())
		}
	}
	text := func() goja.Value { return vm.ToValue(node.Text()) }
	setText := func(v goja.Value) {
		node.SetText(v.String())
		record("set_text", "textContent", v.String())
	}

	tag := strings.ToUpper(goquery.NodeName(node))
	accessor("tagName", func() goja.Value { return vm.ToValue(tag) }, nil)
	accessor("nodeName", func() goja.Value { return vm.ToValue(tag) }, nil)
	accessor("id", attr("id"), setAttr("id"))
	accessor("className", attr("class"), setAttr("class"))
	accessor("value", attr("value"), setAttr("value"))
	accessor("textContent", text, setText)
	accessor("innerText", text, setText)
	accessor("innerHTML", func() goja.Value {
		html, _ := node.Html()
		return vm.ToValue(html)
	}, func(v goja.Value) {
		node.SetHtml(v.String())
		record("set_html", "innerHTML", v.String())
	})

	methods := map[string]func(goja.FunctionCall) goja.Value{
		"getAttribute": func(call goja.FunctionCall) goja.Value {
			if v, ok := node.Attr(call.Argument(0).String()); ok {
				return vm.ToValue(v)
			}
			return goja.Null()
		},
		"setAttribute": func(call goja.FunctionCall) goja.Value {
			setAttr(call.Argument(0).String())(call.Argument(1))
			return goja.Undefined()
		},
		"removeAttribute": func(call goja.FunctionCall) goja.Value {
			name := call.Argument(0).String()
			node.RemoveAttr(name)
			record("remove_attribute", name, nil)
			return goja.Undefined()
		},
		"hasAttribute": func(call goja.FunctionCall) goja.Value {
			_, ok := node.Attr(call.Argument(0).String())
			return vm.ToValue(ok)
		},
		"querySelector": func(call goja.FunctionCall) goja.Value {
			return f.wrapElement(node.Find(call.Argument(0).String()).First())
		},
		"querySelectorAll": func(call goja.FunctionCall) goja.Value {
			return f.wrapAll(node.Find(call.Argument(0).String()))
		},
		// Elements never receive input events in a headless frame
		"addEventListener":    func(goja.FunctionCall) goja.Value { return goja.Undefined() },
		"removeEventListener": func(goja.FunctionCall) goja.Value { return goja.Undefined() },
	}
	for name, fn := range methods {
		_ = elem.Set(name, fn)
	}
	return elem
}
