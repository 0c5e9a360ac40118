package constant

const EmailTicketDeliveryTemplate = `
Dear %s,

Great news! Your payment has been confirmed and your tickets are ready.

Order Details:
------------------------------------------
Order ID: %s
Total Amount: %s
------------------------------------------

Your Tickets:
%s

Please present the ticket codes above at the venue entrance. Each code
admits one person and can only be used once.

Important Information:
- Please arrive at least 30 minutes before the event starts
- Valid ID may be required for entry

If you have any questions, please contact our support team at
support@ticket-reservation.com.

We look forward to seeing you at the event!

Best regards,
Ticket Reservation Team

Note: This is an automated message, please do not reply to this email.
`

const EmailTicketLineTemplate = "  - %s (%s)\n"
