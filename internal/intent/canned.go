package intent

const (
	GreetingText = "Hello! I'm Gloser AI, your pharmaceutical intelligence assistant. I can help you analyze market data, clinical trials, patents, and import/export trade information. What would you like to know?"

	CasualText = "Hey there! I'm doing great, thanks for asking! 😊\n\n" +
		"I'm Gloser AI, ready to help you with pharmaceutical market intelligence. I can analyze:\n\n" +
		"• **Clinical Trials** - Find trials by drug, phase, or indication\n" +
		"• **Market Data** - Market sizes, growth rates, competition\n" +
		"• **Patents** - Patent status, expiry dates, assignees\n" +
		"• **Trade Data** - Import/export volumes for APIs\n\n" +
		"What would you like to explore today?"

	IdentityText = "I'm Gloser AI, a pharmaceutical market intelligence platform. I can help you with:\n\n" +
		"• **Market Analysis** - Market sizes, CAGR, competitors by therapeutic area\n" +
		"• **Clinical Trials** - Trial phases, sponsors, recruitment status\n" +
		"• **Patent Landscape** - Patent filings, expiry dates, assignees\n" +
		"• **Trade Data** - Import/export volumes for pharmaceutical APIs\n\n" +
		"Just ask me anything about the pharmaceutical industry!"

	ThanksText = "You're welcome! Let me know if you have any other questions about the pharmaceutical market."

	FarewellText = "Goodbye! Feel free to come back anytime you need pharmaceutical market insights. Take care! 👋"

	ClarifyText = "I'd be happy to help! Could you please be more specific about what pharmaceutical information you're looking for?\n\n" +
		"For example, you could ask:\n" +
		"• \"Show me clinical trials for diabetes\"\n" +
		"• \"What's the market size for oncology drugs?\"\n" +
		"• \"Find patents for metformin\"\n" +
		"• \"Export data for paracetamol API\""
)

var cannedText = map[Category]string{
	Greeting: GreetingText,
	Casual:   CasualText,
	Identity: IdentityText,
	Thanks:   ThanksText,
	Farewell: FarewellText,
	Clarify:  ClarifyText,
}
