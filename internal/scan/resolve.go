package scan

// Section is the class section the instructor has open. CourseOfferingID is
// the id of the backing course offering; some upstream code generators
// embed that instead of the section id.
type Section struct {
	ID               string `json:"id"`
	Code             string `json:"code,omitempty"`
	CourseID         string `json:"courseId,omitempty"`
	CourseOfferingID string `json:"courseOfferingId,omitempty"`
	Schedule         string `json:"schedule,omitempty"`
	InstructorID     string `json:"instructorId,omitempty"`
}

// Resolution is a payload bound to a concrete section.
type Resolution struct {
	StudentID    string
	SectionID    string
	EnrollmentID string
	Name         string
}

// Resolve checks p against the selected section. A payload without a
// section id is assumed to belong to the selected one.
func Resolve(p Payload, section *Section) (Resolution, error) {
	if section == nil || section.ID == "" {
		return Resolution{}, &ScanError{Kind: MissingSectionContext}
	}

	res := Resolution{
		StudentID: p.StudentID(),
		SectionID: section.ID,
	}
	s, ok := p.(Structured)
	if !ok {
		return res, nil
	}

	if got := s.SectionID; got != "" && got != section.ID {
		if section.CourseOfferingID == "" || got != section.CourseOfferingID {
			return Resolution{}, &ScanError{Kind: SectionMismatch, Expected: section.ID, Got: got}
		}
	}
	res.EnrollmentID = s.EnrollmentID
	res.Name = s.Name
	return res, nil
}
