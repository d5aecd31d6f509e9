package mcpserver

// NoteFormatContract describes how GlyphNote documents are laid out so LLM
// consumers can create and edit notes that render.
const NoteFormatContract = `# GlyphNote Note Format Contract

GlyphNote stores typeset documents in a vault. Every document lives under the
vault's ` + "`notes/`" + ` directory and is one of two engines:

| Engine | Extension | Renderer |
|--------|-----------|----------|
| latex  | .tex      | latexmk -pdf (falls back to pdflatex, run twice) |
| typst  | .typ      | typst compile |

## Rules

1. **One file per note.** The file name is a lowercase ASCII slug of the title
   (e.g. "Lecture 3" becomes ` + "`lecture-3.tex`" + `). Taken names get ` + "`-2`" + `, ` + "`-3`" + `, ...
2. **Sub-folders** under ` + "`notes/`" + ` are allowed and show up as folders in the tree.
3. **The PDF** is written next to the source as ` + "`<stem>.pdf`" + `. Do not edit it.
4. **LaTeX documents** must compile standalone with pdflatex: a ` + "`\\documentclass`" + `,
   a ` + "`\\begin{document}`" + ` and a matching ` + "`\\end{document}`" + `.
5. **Typst documents** must compile with ` + "`typst compile`" + ` without extra inputs.
6. **Encoding** is UTF-8 with a trailing newline.
7. **Saving** replaces the whole file; send the complete source to save_note.

## LaTeX template

` + "```" + `latex
\documentclass{article}
\title{Lecture 3}
\begin{document}
\maketitle

\end{document}
` + "```" + `

## Typst template

` + "```" + `typst
#set document(title: "Lecture 3")
= Lecture 3

` + "```" + `
`
