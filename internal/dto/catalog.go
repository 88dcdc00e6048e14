package dto

// CapacitySpec bounds one section.
type CapacitySpec struct {
	Min   int `json:"min" yaml:"min" validate:"gte=0"`
	Ideal int `json:"ideal" yaml:"ideal" validate:"gtefield=Min"`
	Max   int `json:"max" yaml:"max" validate:"gtefield=Ideal,gt=0"`
}

// ClassificationSpec offers a course to a grade level under a category.
type ClassificationSpec struct {
	GradeLevel string `json:"gradeLevel" yaml:"gradeLevel" validate:"required"`
	CourseType string `json:"courseType" yaml:"courseType" validate:"required"`
	Ranked     bool   `json:"ranked" yaml:"ranked"`
}

// CourseSpec describes one course of the catalog.
type CourseSpec struct {
	Alias          string               `json:"alias" yaml:"alias" validate:"required"`
	Level          int                  `json:"level" yaml:"level" validate:"gte=0"`
	Capacity       CapacitySpec         `json:"capacity" yaml:"capacity"`
	MaxSections    int                  `json:"maxSections" yaml:"maxSections" validate:"gte=0"`
	LinkedTo       string               `json:"linkedTo,omitempty" yaml:"linkedTo"`
	NotAlongside   []string             `json:"notAlongside,omitempty" yaml:"notAlongside" validate:"dive,required"`
	Prerequisites  [][]string           `json:"prerequisites,omitempty" yaml:"prerequisites" validate:"dive,min=1,dive,required"`
	Classification []ClassificationSpec `json:"classification" yaml:"classification" validate:"dive"`
}

// GroupSpec is a pre-formed research group working on one course.
type GroupSpec struct {
	Alias  string `json:"alias" yaml:"alias" validate:"required"`
	Course string `json:"course" yaml:"course" validate:"required"`
}

// StudentSpec is an inline roster entry. Rankings map a category alias to
// course aliases in preference order.
type StudentSpec struct {
	GradeLevel    string              `json:"gradeLevel" yaml:"gradeLevel" validate:"required"`
	Alias         string              `json:"alias" yaml:"alias" validate:"required"`
	ResearchGroup string              `json:"researchGroup,omitempty" yaml:"researchGroup"`
	Taken         []string            `json:"taken,omitempty" yaml:"taken" validate:"dive,required"`
	Rankings      map[string][]string `json:"rankings,omitempty" yaml:"rankings" validate:"dive,dive,required"`
}

// Catalog is the full input of an allocation run.
type Catalog struct {
	Shifts         [][]string    `json:"shifts" yaml:"shifts" validate:"required,min=1,dive,min=1,dive,required"`
	ShiftNames     []string      `json:"shiftNames,omitempty" yaml:"shiftNames"`
	GradeLevels    []string      `json:"gradeLevels" yaml:"gradeLevels" validate:"required,min=1,unique,dive,required"`
	CourseTypes    []string      `json:"courseTypes" yaml:"courseTypes" validate:"required,min=1,unique,dive,required"`
	Courses        []CourseSpec  `json:"courses" yaml:"courses" validate:"required,min=1,dive"`
	ResearchGroups []GroupSpec   `json:"researchGroups,omitempty" yaml:"researchGroups" validate:"dive"`
	Students       []StudentSpec `json:"students,omitempty" yaml:"students" validate:"dive"`
}
