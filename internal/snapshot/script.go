// internal/snapshot/script.go
package snapshot

import "fmt"

// extractScript is the JS routine evaluated in the page to harvest the
// interactive element set. It returns an ordered array of raw element
// descriptors in document order; labelling happens on the Go side so the
// identifier scheme has a single source of truth. When highlighting is on the
// script additionally paints a colored outline and a label badge on each
// element, using the same base-26 scheme as the Go labeller.
//
// Overlay detection is heuristic: dialog roles, aria-modal containers, and
// fixed-position elements covering a large share of the viewport with an
// elevated z-index.
const extractScript = `
(function(highlight) {
	function getLabel(index) {
		let label = '';
		while (index >= 0) {
			label = String.fromCharCode(65 + (index %% 26)) + label;
			index = Math.floor(index / 26) - 1;
		}
		return label;
	}

	const colors = [
		'#ff595e', '#ffca3a', '#8ac926', '#1982c4',
		'#6a4c93', '#f72585', '#b5179e', '#7209b7',
		'#3a0ca3', '#4361ee', '#4cc9f0', '#f77f00'
	];

	function cssSelector(el) {
		const tag = el.tagName.toLowerCase();
		let selector = tag;
		if (el.id) return tag + '#' + CSS.escape(el.id);
		const name = el.getAttribute('name');
		if (name) selector += '[name="' + name.replace(/"/g, '\\"') + '"]';
		else if (el.className && typeof el.className === 'string') {
			const classes = el.className.trim().split(/\s+/).slice(0, 3);
			if (classes.length) selector += '.' + classes.map(c => CSS.escape(c)).join('.');
		}
		const parent = el.parentElement;
		if (parent) {
			const siblings = Array.from(parent.querySelectorAll(':scope > ' + selector));
			if (siblings.length > 1) {
				const idx = Array.from(parent.children).filter(c => c.tagName === el.tagName).indexOf(el) + 1;
				if (idx > 0) selector = tag + ':nth-of-type(' + idx + ')';
			}
		}
		return selector;
	}

	function visible(el) {
		if (el.offsetParent === null && getComputedStyle(el).position !== 'fixed') return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	}

	function isOverlay(el) {
		const role = el.getAttribute('role') || '';
		if (role === 'dialog' || role === 'alertdialog') return true;
		if (el.getAttribute('aria-modal') === 'true') return true;
		if (el.tagName.toLowerCase() === 'dialog' && el.open) return true;
		const style = getComputedStyle(el);
		if (style.position !== 'fixed') return false;
		const z = parseInt(style.zIndex, 10);
		if (isNaN(z) || z < 100) return false;
		const rect = el.getBoundingClientRect();
		const cover = (rect.width * rect.height) / (window.innerWidth * window.innerHeight);
		return cover > 0.3;
	}

	const out = [];
	const seen = new Set();

	function push(el, kind, interactive) {
		if (seen.has(el)) return;
		seen.add(el);
		const rect = el.getBoundingClientRect();
		const tag = el.tagName.toLowerCase();
		const attributes = {};
		for (const attr of el.attributes) {
			if (attr.value.length <= 200) attributes[attr.name] = attr.value;
		}
		let text = (el.innerText || el.value || el.getAttribute('aria-label') || el.getAttribute('placeholder') || '').trim();
		if (text.length > 1000) text = text.slice(0, 1000) + '...';
		out.push({
			tag: tag,
			kind: kind,
			selector: cssSelector(el),
			text: text,
			attributes: attributes,
			interactive: interactive,
			box: { x: rect.x, y: rect.y, width: rect.width, height: rect.height },
			node: el
		});
	}

	for (const el of document.querySelectorAll('[role="dialog"], [role="alertdialog"], [aria-modal="true"], dialog')) {
		if (visible(el) && isOverlay(el)) push(el, 'overlay', false);
	}
	for (const el of document.querySelectorAll('body *')) {
		if (out.length >= 400) break;
		if (seen.has(el) || !visible(el)) continue;
		if (isOverlay(el)) { push(el, 'overlay', false); continue; }
		const tag = el.tagName.toLowerCase();
		const type = el.getAttribute('type') || '';
		if (tag === 'input' && type === 'hidden') continue;
		if (tag === 'input' || tag === 'textarea' || tag === 'select' || el.isContentEditable) {
			push(el, 'typable', true);
		} else if (
			tag === 'a' || tag === 'button' ||
			el.getAttribute('role') === 'button' ||
			el.hasAttribute('onclick') ||
			(el.hasAttribute('tabindex') && el.getAttribute('tabindex') !== '-1')
		) {
			push(el, 'clickable', true);
		}
	}

	if (highlight) {
		out.forEach((item, i) => {
			const el = item.node;
			const label = getLabel(i);
			const color = colors[i %% colors.length];
			el.setAttribute('data-wp-label', label);
			el.style.outline = '2px solid ' + color;
			const badge = document.createElement('div');
			badge.textContent = label;
			badge.setAttribute('data-wp-badge', '1');
			badge.style.cssText =
				'position:absolute;top:0;left:0;z-index:2147483647;background:' + color +
				';color:#fff;font-size:12px;padding:2px 5px;border-radius:4px;' +
				'font-family:monospace;pointer-events:none;';
			if (getComputedStyle(el).position === 'static') el.style.position = 'relative';
			el.appendChild(badge);
		});
	}

	out.forEach(item => delete item.node);
	return out;
})(%t)
`

// buildExtractScript renders the extraction routine with the highlight flag
// baked in.
func buildExtractScript(highlight bool) string {
	return fmt.Sprintf(extractScript, highlight)
}

// clearHighlightScript removes badges and outlines left by a previous
// highlighted extraction, so repeated captures do not stack decorations.
const clearHighlightScript = `
(function() {
	document.querySelectorAll('[data-wp-badge]').forEach(b => b.remove());
	document.querySelectorAll('[data-wp-label]').forEach(el => {
		el.style.outline = '';
		el.removeAttribute('data-wp-label');
	});
	return true;
})()
`
