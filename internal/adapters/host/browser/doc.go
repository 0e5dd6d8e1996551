// Package browser binds the orchestrator to a wallet extension injected into
// a web page. It is only built for js/wasm; the extension exposes a global
// object whose methods return promises, and presentation code talks to the
// orchestrator through CustomEvents dispatched on window.
package browser
