package capability

// extractionPrompt instructs the model to return the profile as one JSON
// object with exactly the schema keys.
const extractionPrompt = `You extract a member profile from a conversation between an HMO services assistant and a user.
The conversation is given inside <chat_history> tags. It may be in Hebrew, English or both.

Return ONLY a JSON object with these keys, all strings:
- "first_name": the user's first name
- "last_name": the user's last name
- "national_id": the 9-digit national ID number
- "gender": male|female (or זכר|נקבה)
- "date_of_birth": date of birth in DD/MM/YYYY format
- "hmo": Clalit|Maccabi|Meuhedet (or כללית|מכבי|מאוחדת)
- "insurance_tier": gold|silver|bronze (or זהב|כסף|ארד)

Use the most recent value when the user corrected themselves. If a value was never given, use an empty string. Do not invent values.`

// historyTemplate wraps the transcript for the extraction call.
const historyTemplate = "<chat_history>%s</chat_history>"
