package patterns

// =============================================================================
// PATTERN DEFINITIONS BY CATEGORY
// All patterns are registered here and compiled once at package init.
// Inputs are normalized (lowercased, confusables folded) before matching,
// so patterns are written against lowercase text.
// =============================================================================

// --- URGENCY / PRESSURE LANGUAGE ---
func (r *Registry) registerUrgencyPatterns() {
	cat := CategoryUrgency

	r.register("act_immediately", `\b(act|respond|reply|click|verify|confirm)\s+(now|immediately|urgently|within\s+\d+\s+(hours?|minutes?))`, cat, 55, "Immediate-action pressure")
	r.register("account_deadline", `\baccount\s+(will\s+be|has\s+been|is\s+being)\s+(suspended|closed|locked|terminated|deactivated)`, cat, 70, "Account suspension deadline")
	r.register("expires_soon", `\b(offer|link|code|access)\s+(expires?|is\s+valid)\s+(today|soon|in\s+\d+)`, cat, 45, "Artificial expiry window")
	r.register("final_notice", `\b(final|last|urgent)\s+(notice|warning|reminder|attempt)\b`, cat, 60, "Final-notice framing")
	r.register("unusual_activity", `\b(unusual|suspicious|unauthorized)\s+(activity|login|sign.?in|transaction|access)\b`, cat, 65, "Fake security alert")
	r.register("immediate_attention", `\b(requires?|needs?)\s+(your\s+)?immediate\s+(attention|action|response)\b`, cat, 55, "Immediate attention demand")
}

// --- CREDENTIAL HARVESTING ---
func (r *Registry) registerCredentialHarvestPatterns() {
	cat := CategoryCredentialHarvest

	r.register("verify_account", `\b(verify|validate|confirm|update|re.?activate)\s+(your\s+)?(account|identity|information|details|password)`, cat, 70, "Account verification lure")
	r.register("login_link", `\b(log\s*in|sign\s*in)\s+(here|below|now|using\s+the\s+link)`, cat, 60, "Login redirection")
	r.register("credentials_request", `\b(enter|provide|submit|send)\s+(your\s+)?(password|pin|ssn|social\s+security|credit\s+card|card\s+number|cvv|otp|one.?time\s+code)`, cat, 85, "Direct credential request")
	r.register("security_update", `\b(security|billing|payment)\s+(update|verification|confirmation)\s+(required|needed|pending)`, cat, 65, "Security update pretext")
	r.register("otp_relay", `\b(share|read|tell|forward)\s+(me\s+|us\s+)?(the\s+)?(otp|verification\s+code|security\s+code|2fa\s+code)`, cat, 90, "OTP relay request")
	r.register("document_auth", `\b(upload|attach|scan)\s+(your\s+)?(id|passport|driver.?s\s+licen[cs]e|bank\s+statement)`, cat, 70, "Identity document request")
}

// --- PAYMENT / MONEY LURES ---
func (r *Registry) registerPaymentLurePatterns() {
	cat := CategoryPaymentLure

	r.register("wire_transfer", `\b(wire|transfer|send)\s+(the\s+)?(money|funds|payment|amount|\$?\d+)`, cat, 70, "Money transfer request")
	r.register("gift_card", `\b(buy|purchase|get)\s+(a\s+|some\s+)?(gift\s*cards?|itunes\s+cards?|google\s+play\s+cards?|steam\s+cards?)`, cat, 85, "Gift card payment request")
	r.register("crypto_payment", `\b(pay|send|deposit|invest)\s+(in\s+|with\s+|using\s+)?(bitcoin|btc|ethereum|eth|usdt|crypto(currency)?)`, cat, 75, "Cryptocurrency payment lure")
	r.register("processing_fee", `\b(processing|handling|release|clearance|customs)\s+fee`, cat, 70, "Advance-fee request")
	r.register("refund_pending", `\b(refund|reimbursement|overpayment)\s+(is\s+)?(pending|waiting|available|due)`, cat, 60, "Fake refund lure")
	r.register("invoice_attached", `\b(outstanding|overdue|unpaid)\s+(invoice|bill|balance|payment)`, cat, 50, "Fake invoice pressure")
}

// --- BRAND / AUTHORITY IMPERSONATION ---
func (r *Registry) registerImpersonationPatterns() {
	cat := CategoryImpersonation

	r.register("bank_support", `\b(your\s+bank|bank\s+(of\s+\w+\s+)?(support|security|fraud)\s+(team|department|dept))`, cat, 60, "Bank support impersonation")
	r.register("brand_security_team", `\b(paypal|amazon|apple|microsoft|google|netflix|facebook|instagram|whatsapp)\s+(support|security|billing|team|service)`, cat, 65, "Brand support impersonation")
	r.register("government_agency", `\b(irs|hmrc|tax\s+(office|authority)|social\s+security\s+administration|customs|border\s+agency)\b`, cat, 65, "Government agency impersonation")
	r.register("tech_support", `\b(your\s+(computer|device|pc)\s+(is|has\s+been)\s+(infected|compromised|hacked))|(\bcall\s+(our\s+)?(support|helpdesk)\s+(number|line|immediately))`, cat, 75, "Tech support scam")
	r.register("delivery_service", `\b(dhl|fedex|ups|usps|royal\s+mail)\b.{0,60}\b(package|parcel|delivery|shipment)\s+(is\s+)?(held|pending|failed|waiting)`, cat, 65, "Delivery service impersonation")
	r.register("ceo_request", `\b(i\s+am|this\s+is)\s+(the\s+)?(ceo|cfo|director|manager)\b.{0,80}\b(urgent|confidential|discreet)`, cat, 70, "Executive impersonation (BEC)")
}

// --- THREAT / EXTORTION LANGUAGE ---
func (r *Registry) registerThreatPatterns() {
	cat := CategoryThreat

	r.register("legal_action", `\b(legal\s+action|lawsuit|arrest\s+warrant|prosecution)\s+(will\s+be|has\s+been|may\s+be)\s+(taken|issued|filed)`, cat, 70, "Legal action threat")
	r.register("account_compromised", `\b(your\s+)?(account|email|device)\s+(has\s+been|was|is)\s+(hacked|compromised|breached)`, cat, 65, "Compromise claim")
	r.register("sextortion", `\b(i\s+have|we\s+have)\s+(recorded|filmed|captured)\s+(you|video|footage)`, cat, 85, "Extortion claim")
	r.register("data_release", `\b(release|publish|share|leak)\s+(your\s+)?(photos|videos|data|information)\s+(to|with)\s+(your\s+)?(contacts|family|friends|public)`, cat, 80, "Data release threat")
}

// --- PRIZE / REWARD LURES ---
func (r *Registry) registerRewardPatterns() {
	cat := CategoryReward

	r.register("lottery_win", `\b(you\s+(have\s+)?(won|been\s+selected)|congratulations.{0,40}(winner|won|prize))`, cat, 70, "Lottery/prize notification")
	r.register("claim_prize", `\bclaim\s+(your\s+)?(prize|reward|winnings|gift|voucher|compensation)`, cat, 70, "Prize claim instruction")
	r.register("inheritance", `\b(inheritance|unclaimed\s+funds?|deceased\s+client|next\s+of\s+kin)\b`, cat, 75, "Inheritance scam")
	r.register("too_good_offer", `\b(100%\s+free|risk.?free|guaranteed\s+(income|returns?|profit))\b`, cat, 55, "Too-good-to-be-true offer")
	r.register("job_offer", `\b(work\s+from\s+home|earn\s+\$?\d+\s*(per|a|\/)\s*(day|week|hour))\b`, cat, 50, "Easy-money job lure")
}

// --- URL STRUCTURE AND KEYWORDS ---
func (r *Registry) registerURLPatterns() {
	r.register("url_ip_host", `^(https?://)?(\d{1,3}\.){3}\d{1,3}([:/]|$)`, CategoryURLStructure, 75, "IP-literal host")
	r.register("url_userinfo", `^https?://[^/@\s]+@`, CategoryURLStructure, 80, "Userinfo @ obscuring real host")
	r.register("url_punycode", `(^|/|\.)xn--`, CategoryURLStructure, 70, "Punycode (IDN homoglyph) host")
	r.register("url_shortener", `(^|/|\.)(bit\.ly|tinyurl\.com|goo\.gl|t\.co|ow\.ly|is\.gd|cutt\.ly|rb\.gy)($|/)`, CategoryURLStructure, 45, "Link shortener hiding destination")
	r.register("url_suspicious_tld", `\.(zip|mov|tk|ml|ga|cf|gq|top|click|link|loan|work|country)(/|$)`, CategoryURLStructure, 50, "TLD with high abuse rate")
	r.register("url_port_unusual", `:[0-9]{2,5}(/|$)`, CategoryURLStructure, 30, "Non-standard port")

	r.register("url_kw_verify", `(secure|verify|account|update|confirm|login|signin|webscr|banking)`, CategoryURLKeyword, 40, "Credential-harvest path keyword")
	r.register("url_kw_wallet", `(wallet|airdrop|claim|bonus|giveaway)`, CategoryURLKeyword, 45, "Crypto lure keyword")
	r.register("url_kw_invoice", `(invoice|payment|billing|refund)`, CategoryURLKeyword, 35, "Payment lure keyword")
}
