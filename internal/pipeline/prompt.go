package pipeline

// decompositionSystem frames every decomposition call.
const decompositionSystem = `You are a technical project manager who turns product requirements documents into implementation task lists. You reply with JSON only.`

// decompositionPrompt is the prompt template for stage 1. It takes the task
// count twice, then the PRD.
const decompositionPrompt = `Break the following product requirements document into exactly %d implementation tasks.

Return ONLY a JSON object with this exact structure (no other text):
{
  "tasks": [
    {
      "id": 1,
      "title": "Short task title",
      "description": "What the task delivers",
      "status": "pending",
      "dependencies": [],
      "priority": "high|medium|low",
      "details": "How to implement it",
      "testStrategy": "How to verify it"
    }
  ]
}

Rules:
- Return exactly %d tasks with ids 1 through N in implementation order
- dependencies may only list ids lower than the task's own id
- priority is one of high, medium or low
- Use an empty array [] when a task has no dependencies

Product requirements document:
%s`

// expansionPrompt is the prompt template for stage 3. It takes the parent
// task's title, description and details.
const expansionPrompt = `Break this task into 3 to 5 subtasks.

Task: %s
Description: %s
Details: %s

Return ONLY a JSON object with this exact structure (no other text):
{
  "subtasks": [
    {
      "id": 1,
      "title": "Short subtask title",
      "description": "What the subtask delivers",
      "details": "How to implement it",
      "estimatedHours": 2
    }
  ]
}`
