package mcpserver

// CommunitySchema describes the community records returned by the tools.
const CommunitySchema = `# Biddge Community Schema

Every community returned by the Biddge tools is a JSON object:

` + "```" + `json
{
  "id": "42",                     // string; numeric ids are rendered as strings
  "name": "Morning Runners",      // required
  "description": "Run before 7.", // required
  "image_url": "https://...",     // optional
  "member_count": 128,            // optional, defaults to 0
  "creator_name": "Ana",          // optional, shown as "Biddge Team" when absent
  "category": "Fitness"           // optional
}
` + "```" + `

## Notes

1. ` + "`list_communities`" + ` accepts an optional ` + "`query`" + `. Matching is a
   case-insensitive substring test on name, category and description.
2. ` + "`featured_communities`" + ` falls back to the first 6 entries of the full
   list when the featured endpoint is unavailable. The result says so.
3. ` + "`get_community`" + ` distinguishes "not found" from "temporarily unavailable".
4. Joining and creating need a signed-in user and are only available in the web app.
`
