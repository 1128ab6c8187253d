package sites

import (
	"encoding/json"
	"fmt"
)

func jsList(selectors []string) string {
	data, _ := json.Marshal(selectors)
	return string(data)
}

// countScript returns how many response blocks are on the page.
func countScript(p Profile) string {
	return fmt.Sprintf(`/* count */ (() => {
	for (const sel of %s) {
		const nodes = document.querySelectorAll(sel);
		if (nodes.length) return nodes.length;
	}
	return 0;
})()`, jsList(p.ResponseSelectors))
}

// submitScript types text into the first usable input and submits it.
// It returns "" on success or a short reason.
func submitScript(p Profile, text string) string {
	msg, _ := json.Marshal(text)
	return fmt.Sprintf(`/* submit */ (async () => {
	const visible = (el) => !!el && el.offsetParent !== null;
	const first = (sels) => {
		for (const sel of sels) {
			for (const el of document.querySelectorAll(sel)) {
				if (visible(el)) return el;
			}
		}
		return null;
	};
	const input = first(%s);
	if (!input) return "input not found";
	const text = %s;
	input.focus();
	if (input.tagName === "TEXTAREA" || input.tagName === "INPUT") {
		const proto = input.tagName === "TEXTAREA" ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
		Object.getOwnPropertyDescriptor(proto, "value").set.call(input, text);
		input.dispatchEvent(new Event("input", { bubbles: true }));
	} else {
		document.execCommand("selectAll", false, null);
		document.execCommand("insertText", false, text);
	}
	await new Promise((r) => setTimeout(r, 300));
	const send = first(%s);
	if (send && !send.disabled) {
		send.click();
		return "";
	}
	input.dispatchEvent(new KeyboardEvent("keydown", { key: "Enter", code: "Enter", keyCode: 13, bubbles: true }));
	return "";
})()`, jsList(p.InputSelectors), msg, jsList(p.SendSelectors))
}

// pollScript reports whether a reply is still streaming and the text of the last one.
func pollScript(p Profile) string {
	return fmt.Sprintf(`/* poll */ (() => {
	let busy = false;
	for (const sel of %s) {
		const el = document.querySelector(sel);
		if (el && el.offsetParent !== null) { busy = true; break; }
	}
	for (const sel of %s) {
		const nodes = document.querySelectorAll(sel);
		if (nodes.length) {
			const last = nodes[nodes.length - 1];
			return { busy, count: nodes.length, text: (last.innerText || last.textContent || "").trim() };
		}
	}
	return { busy, count: 0, text: "" };
})()`, jsList(p.BusySelectors), jsList(p.ResponseSelectors))
}
