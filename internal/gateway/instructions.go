package gateway

// antiHallucinationInstruction is prepended to the model's instruction
// channel whenever a request's session mapping is non-empty, so the model
// treats bracketed placeholders as opaque literals rather than inventing or
// renumbering them (spec §6 "Anti-hallucination instruction").
const antiHallucinationInstruction = "IMPORTANT: Some values in this conversation have been replaced with " +
	"bracketed placeholders like [person_1] or [ssn_1]. You MUST use these placeholders exactly as they " +
	"appear — never invent new ones, never change their numbers, and never create placeholders for values " +
	"that are not already bracketed. ALL UN-BRACKETED VALUES ARE SAFE TO USE EXACTLY AS-IS."
