package browser

// JS snippets evaluated in the page. Each is a function expression so rod can
// pass arguments positionally.

const jsVisible = `(sel) => {
	const el = document.querySelector(sel);
	if (!el) return false;
	const s = getComputedStyle(el);
	const r = el.getBoundingClientRect();
	const hidden = s.display === 'none' || s.visibility === 'hidden' || s.opacity === '0';
	return !hidden && r.width > 0 && r.height > 0;
}`

const jsHidden = `(sel) => {
	const el = document.querySelector(sel);
	if (!el) return true;
	const s = getComputedStyle(el);
	const r = el.getBoundingClientRect();
	return s.display === 'none' || s.visibility === 'hidden' || s.opacity === '0' || r.width === 0 || r.height === 0;
}`

const jsCountAbove = `(sel, n) => document.querySelectorAll(sel).length > n`

const jsContainsText = `(sel, text) => {
	const el = document.querySelector(sel);
	return !!el && (el.innerText || '').toLowerCase().includes(text.toLowerCase());
}`

const jsAnyContainsText = `(sel, text) => Array.from(document.querySelectorAll(sel))
	.some(el => (el.innerText || '').toLowerCase().includes(text.toLowerCase()))`

// jsClickByText clicks the first element under sel whose innerText contains text.
const jsClickByText = `(sel, text) => {
	const items = Array.from(document.querySelectorAll(sel));
	const hit = items.find(el => (el.innerText || '').includes(text));
	if (!hit) return false;
	hit.scrollIntoView({block: 'center'});
	hit.click();
	return true;
}`

// jsMarkActive flags cells whose computed colour equals hex, and rows holding one.
const jsMarkActive = `(sel, hex) => {
	const toHex = (el) => {
		const nums = (getComputedStyle(el).color.match(/\d+/g) || []).slice(0, 3).map(Number);
		if (nums.length < 3) return '';
		return '#' + nums.map(v => v.toString(16).padStart(2, '0')).join('');
	};
	let marked = 0;
	for (const row of document.querySelectorAll(sel)) {
		let active = false;
		for (const td of row.querySelectorAll('td')) {
			if (toHex(td) === hex) {
				td.setAttribute('data-ps-active', '1');
				active = true;
			}
		}
		if (active) {
			row.setAttribute('data-ps-active', '1');
			marked++;
		}
	}
	return marked;
}`

// jsDefuseOverlays hides known ad/consent containers and makes large
// positioned layers click-through.
const jsDefuseOverlays = `() => {
	const selectors = [
		"[id*='sp_message_container']", "[class*='sp_message']",
		"iframe[id^='google_ads_iframe']", "iframe[src*='pub.network']",
		"iframe[src*='googlesyndication']", "iframe[src*='doubleclick']",
		"[id*='aswift_']", "[class*='qc-cmp2']",
		"#onetrust-banner-sdk", "#onetrust-consent-sdk",
		".fc-dialog-container", ".fc-consent-root",
		".cc-window", ".cookie-consent", ".consent-modal",
	];
	let touched = 0;
	document.querySelectorAll(selectors.join(',')).forEach(el => {
		el.style.setProperty('pointer-events', 'none', 'important');
		el.style.setProperty('display', 'none', 'important');
		touched++;
	});
	for (const el of document.querySelectorAll('body *')) {
		const s = getComputedStyle(el);
		if (s.display === 'none' || s.visibility === 'hidden') continue;
		if (s.position !== 'fixed' && s.position !== 'sticky' && s.position !== 'absolute') continue;
		const r = el.getBoundingClientRect();
		if (r.width >= 200 && r.height >= 80 && r.top <= innerHeight * 0.9 && r.left <= innerWidth * 0.9) {
			el.style.setProperty('pointer-events', 'none', 'important');
			touched++;
		}
	}
	return touched;
}`

const jsInputInventory = `() => Array.from(document.querySelectorAll('input')).slice(0, 30).map(el => {
	const s = getComputedStyle(el);
	const r = el.getBoundingClientRect();
	const visible = !(s.display === 'none' || s.visibility === 'hidden' || s.opacity === '0') && r.width > 0 && r.height > 0;
	return {id: el.id || '', name: el.name || '', type: el.type || '', placeholder: el.placeholder || '', visible};
})`

const jsOuterHTML = `(sel) => {
	const el = sel ? document.querySelector(sel) : document.documentElement;
	return el ? el.outerHTML : '';
}`
