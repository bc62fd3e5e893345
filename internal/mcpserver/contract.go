package mcpserver

// DocumentFormatContract describes the YAML document and property value
// format accepted by the import and create tools.
const DocumentFormatContract = `# Arbor Document Format

A document is a YAML mapping with a ` + "`nodes`" + ` list. Every entry has a
` + "`name`" + `, optional ` + "`properties`" + ` and optional ` + "`children`" + ` in the same shape.

` + "```" + `yaml
nodes:
  - name: catalog
    properties:
      title: Spring catalog
      pages: 48
      tags: [seasonal, print]
    children:
      - name: item
        properties:
          jcr:uuid: 5f0c3c9e-7a43-4c3b-9a2b-4b8f8f1f6a10
      - name: item
        properties:
          related: {type: reference, value: 5f0c3c9e-7a43-4c3b-9a2b-4b8f8f1f6a10}
` + "```" + `

## Rules

1. **Names** are non-empty and contain no ` + "`/`" + `, ` + "`[`" + ` or ` + "`]`" + `.
2. **Same-name siblings** are allowed. Repeated names get indexes in document
   order: the second ` + "`item`" + ` above becomes ` + "`/catalog/item[2]`" + `.
3. **Plain values** map to string, long, double or boolean properties. A list
   makes a multi-valued property.
4. **Typed values** use ` + "`{type: <type>, value: <text>}`" + ` where type is one of
   string, long, double, boolean, date, binary (base64), reference, name, path.
5. **Identifiers** go in ` + "`jcr:uuid`" + `. References point at an identifier in the
   same workspace. Copies get new identifiers and references inside the
   copied branch follow them.
6. **Null** values are rejected on import. When updating properties, null
   removes the property.

## Conflicts

- ` + "`append`" + ` (default) adds the imported nodes after existing same-name siblings.
- ` + "`replace`" + ` removes an existing same-name node first.
`
