package auth

import "fmt"

const (
	verificationSubject = "Verify your FindItNow email"
	resetSubject        = "Your FindItNow password reset code"
)

func verificationBody(code string) string {
	return fmt.Sprintf(`
		<p>Welcome to FindItNow!</p>
		<p>Use the code below to verify your email address. It expires in 2 minutes.</p>
		<p class="code">%s</p>
		<p>If you did not create an account, you can ignore this email.</p>
	`, code)
}

func resetBody(code string) string {
	return fmt.Sprintf(`
		<p>We received a request to reset your password.</p>
		<p>Use the code below to continue. It expires in 10 minutes.</p>
		<p class="code">%s</p>
		<p>If you did not request a reset, your account is still safe and no
		action is needed.</p>
	`, code)
}
