// Package tika extracts text and metadata from documents of many formats,
// recursing into everything embedded in them.
//
// Given a byte stream of unknown format, tika detects its type, dispatches
// to the matching extractor and records a normalized XHTML-like event stream
// plus a metadata record. Attachments, archive members, mailbox messages,
// pictures and OLE payloads found along the way are extracted the same way,
// producing a tree of results.
//
// # Quick Start
//
// Extracting a file:
//
//	t := tika.New()
//	root, err := t.ExtractFile(ctx, "mail.eml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	root.Walk(func(n *tika.Node) error {
//		fmt.Println(n.PathString(), n.Format, n.Metadata.Get(tika.KeyResourceName))
//		return nil
//	})
//
// # Supported Formats
//
//   - Audio: WAV, AIFF and AU headers, and FLAC, Ogg Vorbis/Opus, MP3 and
//     MP4/M4A with their tags, chapters and pictures
//   - Containers: ZIP, TAR, 7z, RAR and gzip/bzip2/xz/zstd compression
//   - Mail: RFC 822 messages and mbox mailboxes
//   - Documents: HTML, DOCX, ODT, PDF and OLE2 compound documents
//   - Text: plain text with charset detection, TMX and SRT/WebVTT/SSA subtitles
//
// # Architecture
//
//	[Tika]               - Entry point with New()
//	  └─ [driver]        - Limits, translators, detection, dispatch
//	       ├─ [registry] - Ordered extractors and translators
//	       └─ [Node]     - One result per stream, children in discovery order
//
// Extractors implement a common interface and are selected by format in
// registration order, so extractors passed with WithExtractors take
// precedence over the built-in ones.
//
// # Error Handling
//
// Extract returns an error only when the root stream cannot be read. Every
// other problem (an unsupported format, a corrupt member, an exceeded limit)
// is recorded on the node where it happened as an "X-TIKA:EXCEPTION:"
// warning, and extraction of its siblings continues:
//
//	for _, w := range root.Warnings() {
//		log.Printf("warning: %s", w)
//	}
//
// # Limits
//
// Depth, embedded count and total bytes read are bounded per document. See
// WithMaxDepth, WithMaxEmbedded and WithMaxBytes.
package tika
