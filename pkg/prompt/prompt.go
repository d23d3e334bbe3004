// Package prompt holds the template functions that turn tree context into
// provider prompts. The pipeline treats the returned strings as opaque;
// callers may swap in their own builders as long as the replies keep the
// reply-field contract documented on each builder type.
package prompt

import (
	"fmt"
	"strings"
)

// Reply fields the default templates instruct the model to use. The content
// stage reads generated text out of these keys.
const (
	// IntroReplyField is the key an introduction reply must carry.
	IntroReplyField = "introduction_text"
	// PointReplyField is the key a point elaboration reply must carry.
	PointReplyField = "point_content"
)

// OutlineRequest carries the chapter fields an outline prompt needs.
type OutlineRequest struct {
	PartName     string
	ChapterTitle string
	Description  string
}

// IntroRequest carries the section fields an introduction prompt needs.
// Points holds the non-blank outline points the introduction previews.
type IntroRequest struct {
	BookTitle    string
	PartName     string
	SectionTitle string
	Points       []string
}

// PointRequest carries the fields a point elaboration prompt needs.
// PriorContext is the already-trimmed text of earlier items in the same
// chapter, or empty for the first point after the introduction.
type PointRequest struct {
	BookTitle    string
	PartName     string
	SectionTitle string
	Point        string
	ItemNumber   string
	PriorContext string
}

// OutlineFunc builds the prompt that asks for a chapter writing guide. The
// reply must be a JSON object with a "writing_sections" array.
type OutlineFunc func(OutlineRequest) (string, error)

// IntroFunc builds the prompt that asks for a section introduction. The
// reply must be a JSON object keyed by IntroReplyField.
type IntroFunc func(IntroRequest) (string, error)

// PointFunc builds the prompt that asks for a point elaboration. The reply
// must be a JSON object keyed by PointReplyField.
type PointFunc func(PointRequest) (string, error)

// Builders bundles the three template functions a generation run needs.
type Builders struct {
	Outline OutlineFunc
	Intro   IntroFunc
	Point   PointFunc
}

// Defaults returns the built-in academic writing templates.
func Defaults() Builders {
	return Builders{
		Outline: Outline,
		Intro:   Intro,
		Point:   Point,
	}
}

const outlineTemplate = `You are an expert academic writer and editor creating a detailed writing guide for a book chapter. Your goal is to structure the writing process for an author.

CONTEXT:
- Book Part: %q
- Proposed Chapter Title: %q
- Chapter Description/Goal: %q

TASK:
Based only on the provided Chapter Title and Description, generate a comprehensive writing outline. Break the chapter into logical sections ('writing_sections') and give actionable guidance on the content of each one ('content_points_to_cover'), including suggested search queries ('Google Search_terms') for further research by the author. Write as many sections as needed to cover the chapter description thoroughly, and write the content points in detail.

Adhere strictly to the following JSON structure:

OUTPUT JSON STRUCTURE:
{
  "chapter_title_suggestion": "A concise, engaging title based on the input, potentially refining the original.",
  "writing_sections": [
    {
      "section_title": "Proposed title for this section, descriptive and clear",
      "content_points_to_cover": [
        "Detailed point 1: what core concept, topic, or event to explain or analyze here, with the specific angle derived from the description.",
        "Detailed point 2: another key aspect from the description relevant to this section.",
        "Detailed point 3: connections or comparisons to make within this section."
      ],
      "Google Search_terms": [
        "Specific search query for researching point 1",
        "Broader search term for the core topic of this section"
      ]
    }
  ]
}

INSTRUCTIONS FOR FILLING THE JSON:
- Create as many 'writing_sections' objects as the chapter description needs. Do NOT limit the number arbitrarily.
- 'chapter_title_suggestion': refine the input title for clarity and impact, or keep the original.
- 'section_title': a clear, descriptive title for the section.
- 'content_points_to_cover': MUST be a JSON array. List detailed, actionable points telling the author what concepts, arguments, analyses, or information from the description belong in this section.
- 'Google Search_terms': MUST be a JSON array of relevant search query strings for this section's topics.

CRITICAL JSON VALIDITY RULES:
1. Your entire response MUST be a single, valid JSON object conforming exactly to the structure above.
2. Do NOT include any introductory text, explanations, comments, or Markdown code fences outside of the JSON object itself.
3. Ensure correct comma usage in arrays and objects.
4. Ensure all strings are enclosed in double quotes and internal double quotes are escaped.

Double-check your response for validity before outputting.`

// Outline is the default OutlineFunc.
func Outline(req OutlineRequest) (string, error) {
	return fmt.Sprintf(outlineTemplate, req.PartName, req.ChapterTitle, req.Description), nil
}

const introTemplate = `You are an expert academic writer specializing in content creation. Your task is to write a compelling and informative introduction for a specific chapter section in a book.

BOOK CONTEXT:
- Book Title: %q

CURRENT SECTION DETAILS:
- Part Name: %q
- Chapter Section Title: %q (this section acts like a sub-chapter)

POINTS COVERED IN THIS CHAPTER SECTION:
%s

TASK:
Based on the provided context, section title, and the summary of points to be covered, write an engaging introduction for this specific chapter section.
- State the section's purpose and scope clearly.
- Briefly preview the key topics that will be discussed within this section.
- Set the stage for the reader, highlighting why this section matters within the broader chapter and part.
- Maintain an academic, clear, and concise tone across one or two well-structured paragraphs.
- This introduction will be the first item within this chapter section.

OUTPUT FORMAT:
Your entire response MUST be a single, valid JSON object containing only one key, "introduction_text", with the generated introduction as its string value.
Example JSON output:
{
  "introduction_text": "This section delves into the core principles of..."
}

CRITICAL INSTRUCTIONS:
1. Respond ONLY with the valid JSON object.
2. Do NOT include any text outside the JSON object.
3. Ensure the text addresses the task based only on the provided information.`

// Intro is the default IntroFunc.
func Intro(req IntroRequest) (string, error) {
	var points strings.Builder
	for _, p := range req.Points {
		if p == "" {
			continue
		}
		fmt.Fprintf(&points, "- %s\n", p)
	}
	summary := strings.TrimRight(points.String(), "\n")
	if summary == "" {
		summary = "- (No specific points listed in outline)"
	}
	return fmt.Sprintf(introTemplate, req.BookTitle, req.PartName, req.SectionTitle, summary), nil
}

const pointTemplate = `You are an expert academic writer specializing in content creation. Your task is to elaborate on a single specific point within a book chapter section, ensuring coherence with preceding text.

BOOK CONTEXT:
- Book Title: %q

CURRENT LOCATION IN BOOK:
- Part Name: %q
- Chapter Section Title: %q
- Current Item Number: %s

SPECIFIC POINT TO ELABORATE ON:
%q

CONTEXT FROM EARLIER IN THIS SECTION:
%s

TASK:
Write detailed and informative content, one or more paragraphs, that elaborates only on the SPECIFIC POINT TO ELABORATE ON (%s).
- CRITICAL: read the preceding context. DO NOT REPEAT information already covered there. Build on it and focus exclusively on new, relevant details, analysis, examples, or explanations for the current point.
- Assume this content follows the preceding items and precedes later points within this chapter section.
- Provide accurate, relevant information suitable for the book's audience.
- Maintain an academic, clear, and objective tone. Use precise language.

OUTPUT FORMAT:
Your entire response MUST be a single, valid JSON object containing only one key, "point_content", with the generated elaboration as its string value.
Example JSON output:
{
  "point_content": "The historical context for this policy begins in the post-independence era..."
}

CRITICAL INSTRUCTIONS:
1. Respond ONLY with the valid JSON object.
2. Do NOT include any text outside the JSON object.
3. Ensure the generated text directly and exclusively elaborates on the single specific point, avoiding repetition from the provided context.`

// Point is the default PointFunc.
func Point(req PointRequest) (string, error) {
	contextSection := "This is the first elaborated point in this chapter section after the introduction."
	if strings.TrimSpace(req.PriorContext) != "" {
		contextSection = fmt.Sprintf("PRECEDING CONTENT SUMMARY (from the introduction up to the previous item in this chapter section):\n---\n%s\n---", strings.TrimSpace(req.PriorContext))
	}
	return fmt.Sprintf(pointTemplate,
		req.BookTitle, req.PartName, req.SectionTitle, req.ItemNumber,
		req.Point, contextSection, req.ItemNumber), nil
}
