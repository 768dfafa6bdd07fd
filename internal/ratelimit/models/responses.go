package models

// ExceededMessage is the client-facing text of a rate limit denial.
const ExceededMessage = "Too many attempts, please try again later."
