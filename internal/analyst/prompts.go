package analyst

const evidenceFormat = `

Respond ONLY with JSON, no markdown fences:
{
  "evidence": [
    {
      "type": "ip|domain|url|file_hash|file_path|process|command_line|registry|user|host|timestamp|network_flow|email|behavior|alert|policy|other",
      "value": "the fact as written",
      "source_spans": [{"start_char": 0, "end_char": 10, "quote": "exact text copied from the incident"}],
      "extraction_confidence": 0.9,
      "notes": null
    }
  ]
}

Every item needs at least one source span whose quote is copied exactly from
the incident text. Do not infer indicators that are not written there. If
nothing can be extracted, respond with {"evidence": []}.`

const claimsFormat = `

Respond ONLY with JSON, no markdown fences:
{
  "stance": "BENIGN_HYPOTHESIS|MALICIOUS_HYPOTHESIS|SKEPTICAL_HYPOTHESIS",
  "claims": [
    {
      "summary": "one sentence",
      "direction": "supports_benign|supports_malicious|neutral_or_unclear",
      "supporting_evidence_ids": ["<evidence_id>"],
      "counter_evidence_ids": [],
      "claim_confidence": 0.7,
      "assumptions": ["what must hold for this claim"]
    }
  ],
  "agent_confidence": 0.6,
  "gaps": [{"gap": "missing information", "why_it_matters": "how it would change the call"}]
}

Cite evidence only by the evidence_id values listed. You may contradict your
initial stance when the evidence requires it.`

const evidenceUserPrompt = `Incident text:
%s

Extract evidence with exact quotes from the text above.`

const claimsUserPrompt = `Incident text:
%s

Available evidence (cite by evidence_id only):
%s

Generate claims grounded in the evidence above.`
