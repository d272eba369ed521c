package email

import (
	"fmt"
	"time"
)

const submissionPreamble = "A new form submission has been received and processed successfully.\n\n" +
	"Please review the submission in the admin dashboard.\n\n"

// SubmissionNotificationText returns the plain-text body of a submission
// notification wrapping the rendered answers.
func SubmissionNotificationText(answers string) string {
	return submissionPreamble + answers
}

// TestNotificationText returns the body of a connectivity test message.
func TestNotificationText(appName string, at time.Time) string {
	return fmt.Sprintf(`This is a test notification from %s.

It was sent at %s to confirm that submission notifications can be delivered.
No action is required.`, appName, at.Format(time.RFC1123))
}
