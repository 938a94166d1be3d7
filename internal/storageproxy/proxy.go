// Package storageproxy builds the script that shadows window.localStorage
// inside a sandboxed applet document.
//
// The generated script keeps the mapping in a closure, forwards every
// mutation to the host window as a {type: "storageChanged", data: {...}}
// message and installs itself as a non-writable, non-configurable property so
// applet code cannot swap it out.
package storageproxy

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/appletsync/internal/shared/types"
)

const snapshotToken = "__APPLET_STORAGE_SNAPSHOT__"

// script is the proxy body. snapshotToken is replaced by the JSON snapshot
// quoted as a string literal. Parsing it with JSON.parse into prototype-less
// objects keeps keys such as __proto__ ordinary entries.
const script = `(function() {
  var has = Object.prototype.hasOwnProperty;
  var data = Object.create(null);
  var seed = JSON.parse(` + snapshotToken + `);
  for (var s in seed) {
    if (has.call(seed, s)) {
      data[s] = String(seed[s]);
    }
  }

  function notify() {
    var copy = Object.create(null);
    for (var k in data) {
      if (has.call(data, k)) {
        copy[k] = data[k];
      }
    }
    window.parent.postMessage({ type: 'storageChanged', data: copy }, '*');
  }

  var storage = {
    setItem: function(key, value) {
      if (typeof key !== 'string') {
        throw new TypeError('Keys must be strings');
      }
      data[key] = String(value);
      notify();
    },
    getItem: function(key) {
      return has.call(data, key) ? data[key] : null;
    },
    removeItem: function(key) {
      delete data[key];
      notify();
    },
    clear: function() {
      data = Object.create(null);
      notify();
    },
    key: function(index) {
      var k = Object.keys(data)[Number(index)];
      return typeof k === 'string' ? k : null;
    }
  };
  Object.defineProperty(storage, 'length', {
    get: function() { return Object.keys(data).length; },
    enumerable: true
  });

  Object.defineProperty(window, 'localStorage', {
    value: storage,
    writable: false,
    configurable: false,
    enumerable: true
  });
})();`

// Build returns the proxy script seeded with snapshot.
func Build(snapshot types.Snapshot) (string, error) {
	if snapshot == nil {
		snapshot = types.Snapshot{}
	}
	// ConfigStd escapes <, > and & so the payload cannot close the script tag.
	encoded, err := sonic.ConfigStd.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("encode storage snapshot: %w", err)
	}
	literal, err := sonic.ConfigStd.Marshal(string(encoded))
	if err != nil {
		return "", fmt.Errorf("quote storage snapshot: %w", err)
	}
	return strings.Replace(script, snapshotToken, string(literal), 1), nil
}

// Tag wraps the proxy script in a <script> element.
func Tag(snapshot types.Snapshot) (string, error) {
	body, err := Build(snapshot)
	if err != nil {
		return "", err
	}
	return "<script>" + body + "</script>", nil
}
