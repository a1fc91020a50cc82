// Package embeddings provides query and document embeddings through
// langchaingo's OpenAI-compatible embedder. It works against OpenAI, Azure
// OpenAI deployments and self-hosted TEI servers.
package embeddings
